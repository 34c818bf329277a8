package smooth

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odd-annotate/internal/schema"
	"github.com/sells-group/odd-annotate/internal/table"
)

// ColumnStat records how many cells smoothing changed in a shadow column.
type ColumnStat struct {
	Column  string
	Changed int
}

// isMissing marks empty cells as missing for blip removal.
func isMissing(v string) bool { return v == "" }

// Sequence applies the smoothing variant of f to one scene's values.
func Sequence(s *schema.Schema, f schema.Field, values []string) []string {
	minRun := s.MinRun(f)
	switch f.Smoothing {
	case schema.SmoothRunLength:
		return RunLength(values, minRun)
	case schema.SmoothSpikes:
		return Spikes(values, minRun)
	case schema.SmoothBlips:
		return Blips(values, minRun, isMissing)
	default:
		return table.Clone(values)
	}
}

// Apply builds the shadow column for every smoothed field present in t and
// smooths it scene by scene. Rows outside any scene keep their raw value.
// Fields missing from t are skipped with a warning.
func Apply(ctx context.Context, s *schema.Schema, t *table.Table, workers int) (*table.Patch, []ColumnStat, error) {
	patch := table.NewPatch()
	var stats []ColumnStat

	scenes, err := t.Scenes(s.SceneColumn)
	if err != nil {
		zap.L().Warn("smooth: scene column not found, skipping temporal smoothing",
			zap.String("scene_column", s.SceneColumn),
		)
		return patch, nil, nil
	}

	for _, f := range s.Smoothed() {
		raw, ok := t.Column(f.Name)
		if !ok {
			zap.L().Debug("smooth: field not in table", zap.String("field", f.Name))
			continue
		}

		shadow := table.Clone(raw)
		var changed atomic.Int64
		err := table.EachScene(ctx, scenes, workers, func(sc table.Scene) {
			seq := sc.Gather(raw)
			corrected := Sequence(s, f, seq)
			changed.Add(int64(Changed(seq, corrected)))
			sc.Scatter(shadow, corrected)
		})
		if err != nil {
			return nil, nil, eris.Wrapf(err, "smooth: field %s", f.Name)
		}

		col := s.Shadow(f.Name)
		patch.Set(col, shadow)
		stats = append(stats, ColumnStat{Column: col, Changed: int(changed.Load())})

		if n := changed.Load(); n > 0 {
			zap.L().Debug("smooth: corrected column",
				zap.String("column", col),
				zap.String("variant", string(f.Smoothing)),
				zap.Int("min_run", s.MinRun(f)),
				zap.Int64("changed", n),
			)
		}
	}

	return patch, stats, nil
}
