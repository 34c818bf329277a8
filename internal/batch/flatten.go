package batch

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odd-annotate/internal/table"
)

// FlattenValue flattens a decoded JSON object into dotted keys. Lists are
// kept as JSON text so the list checks can parse them back.
func FlattenValue(prefix string, v any, out map[string]string) {
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			FlattenValue(key, child, out)
		}
	case []any:
		data, _ := json.Marshal(x)
		out[prefix] = string(data)
	case string:
		out[prefix] = x
	case float64:
		out[prefix] = strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		out[prefix] = strconv.FormatBool(x)
	case nil:
		out[prefix] = ""
	default:
		data, _ := json.Marshal(x)
		out[prefix] = string(data)
	}
}

// isFailure reports whether v is an {"error": ...} placeholder.
func isFailure(v map[string]any) bool {
	_, ok := v["error"]
	return ok && len(v) == 1
}

// Flatten builds one row per JSON object result. Rows follow the order of
// reqs, then results without a request in id order. Scene and sample ids
// come from the request. Raw text and failure placeholders are skipped and
// their ids returned.
func Flatten(results map[string]any, reqs []Request, sceneCol, sampleCol string) (*table.Table, []string, error) {
	if sceneCol == "" || sampleCol == "" || sceneCol == sampleCol {
		return nil, nil, eris.New("batch: flatten needs distinct scene and sample columns")
	}

	order := make([]string, 0, len(results))
	placed := make(map[string]bool, len(results))
	for _, r := range reqs {
		if _, ok := results[r.CustomID]; ok && !placed[r.CustomID] {
			placed[r.CustomID] = true
			order = append(order, r.CustomID)
		}
	}
	var extra []string
	for id := range results {
		if !placed[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	idx := IndexRequests(reqs)
	var (
		rows    []map[string]string
		skipped []string
	)
	keys := make(map[string]bool)
	for _, id := range order {
		obj, ok := results[id].(map[string]any)
		if !ok || isFailure(obj) {
			skipped = append(skipped, id)
			continue
		}
		row := make(map[string]string)
		FlattenValue("", obj, row)
		for k := range row {
			keys[k] = true
		}
		r := idx[id]
		row[sceneCol] = r.Scene
		row[sampleCol] = r.Sample
		rows = append(rows, row)
	}

	delete(keys, sceneCol)
	delete(keys, sampleCol)
	header := []string{sceneCol, sampleCol}
	attrs := make([]string, 0, len(keys))
	for k := range keys {
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)
	header = append(header, attrs...)

	records := make([][]string, len(rows))
	for i, row := range rows {
		rec := make([]string, len(header))
		for j, h := range header {
			rec[j] = row[h]
		}
		records[i] = rec
	}

	if len(skipped) > 0 {
		zap.L().Warn("batch: skipped non-object results", zap.Int("count", len(skipped)))
	}
	t, err := table.New(header, records)
	if err != nil {
		return nil, nil, eris.Wrap(err, "batch: flatten")
	}
	return t, skipped, nil
}
