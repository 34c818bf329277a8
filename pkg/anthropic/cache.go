package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
)

// CachedSystem returns the annotation instructions as a system block with a
// one-hour cache breakpoint, so every request of a batch reads the same
// cached prefix.
func CachedSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "1h"}}}
}

// WarmCache sends req once as a regular message so the cached system prefix
// exists before the batch starts.
func WarmCache(ctx context.Context, client Client, req MessageRequest) (*MessageResponse, error) {
	resp, err := client.CreateMessage(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: warm cache")
	}
	resp.Usage.LogCost(req.Model, "cache_warm")
	return resp, nil
}
