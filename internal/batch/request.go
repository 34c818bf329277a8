// Package batch moves annotation requests through the remote batch API:
// submission, result collection and cleaning, resubmission of invalid
// results, and flattening of the cleaned results into a table.
package batch

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// maxLine bounds a single request line. Requests carry image paths, not
// image bytes, so lines stay small.
const maxLine = 4 << 20

// ImageRef points at one camera frame of a sample.
type ImageRef struct {
	Path      string `json:"path"`
	MediaType string `json:"media_type,omitempty"`
}

// Request is one line of a request file: a prompt plus the frames of one
// sample.
type Request struct {
	CustomID string     `json:"custom_id"`
	Scene    string     `json:"scene"`
	Sample   string     `json:"sample"`
	Prompt   string     `json:"prompt"`
	Images   []ImageRef `json:"images"`
}

// ReadRequests reads a JSONL request file. Blank lines are skipped; lines
// that fail to decode or lack a custom_id are logged and skipped.
func ReadRequests(path string) ([]Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open requests %s", path)
	}
	defer f.Close() //nolint:errcheck

	var reqs []Request
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var r Request
		if err := json.Unmarshal([]byte(raw), &r); err != nil || r.CustomID == "" {
			zap.L().Warn("batch: skipping request line",
				zap.String("path", path),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}
		reqs = append(reqs, r)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "batch: read requests %s", path)
	}
	return reqs, nil
}

// WriteRequests writes reqs as JSONL, creating parent directories.
func WriteRequests(reqs []Request, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "batch: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "batch: create requests %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range reqs {
		if err := enc.Encode(r); err != nil {
			return eris.Wrapf(err, "batch: encode request %s", r.CustomID)
		}
	}
	return eris.Wrapf(w.Flush(), "batch: write requests %s", path)
}

// IndexRequests maps custom ids to requests. A repeated id keeps the first
// request.
func IndexRequests(reqs []Request) map[string]Request {
	idx := make(map[string]Request, len(reqs))
	for _, r := range reqs {
		if _, ok := idx[r.CustomID]; ok {
			zap.L().Warn("batch: duplicate custom_id", zap.String("custom_id", r.CustomID))
			continue
		}
		idx[r.CustomID] = r
	}
	return idx
}

// Select returns the requests for ids, in id order. Ids without a request
// are returned as missing.
func Select(idx map[string]Request, ids []string) (found []Request, missing []string) {
	for _, id := range ids {
		r, ok := idx[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		found = append(found, r)
	}
	return found, missing
}
