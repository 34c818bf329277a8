package table

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Scene is the ordered set of row indexes that share one scene id. Row order
// within the source table is the temporal order of the scene.
type Scene struct {
	ID   string
	Rows []int
}

// Len returns the number of samples in the scene.
func (s Scene) Len() int { return len(s.Rows) }

// Gather returns the scene's values from a full-length column.
func (s Scene) Gather(col []string) []string {
	out := make([]string, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = col[r]
	}
	return out
}

// Scatter writes scene-ordered values back into a full-length column.
func (s Scene) Scatter(dst, values []string) {
	for i, r := range s.Rows {
		dst[r] = values[i]
	}
}

// Scenes groups rows by the scene column in order of first appearance. Rows
// with an empty scene id belong to no scene.
func (t *Table) Scenes(sceneCol string) ([]Scene, error) {
	col, ok := t.Column(sceneCol)
	if !ok {
		return nil, eris.Errorf("table: scene column %q not found", sceneCol)
	}
	pos := make(map[string]int)
	var scenes []Scene
	for row, id := range col {
		if id == "" {
			continue
		}
		i, seen := pos[id]
		if !seen {
			i = len(scenes)
			pos[id] = i
			scenes = append(scenes, Scene{ID: id})
		}
		scenes[i].Rows = append(scenes[i].Rows, row)
	}
	return scenes, nil
}

// EachScene runs fn for every scene with at most workers goroutines. Scenes
// are independent, so fn may write to any row index owned by its scene.
func EachScene(ctx context.Context, scenes []Scene, workers int, fn func(Scene)) error {
	if workers < 1 {
		workers = 1
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, s := range scenes {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return eris.Wrap(ctx.Err(), "table: scene fan-out")
}
