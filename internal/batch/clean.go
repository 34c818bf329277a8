package batch

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/sells-group/odd-annotate/pkg/anthropic"
)

var codeFenceRe = regexp.MustCompile("(?m)^```(\\w+)?\\s*|\\s*```$")

// StripCodeFences removes Markdown code fences such as ```json ... ```.
func StripCodeFences(text string) string {
	return strings.TrimSpace(codeFenceRe.ReplaceAllString(text, ""))
}

// Cleaned is one batch result after fence stripping and JSON validation.
type Cleaned struct {
	CustomID string `json:"custom_id"`
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	// Value is the parsed JSON, the raw text when parsing failed, or an
	// {"error": type} object for failed items.
	Value any  `json:"-"`
	Valid bool `json:"-"`
}

// Clean classifies a single batch result item.
func Clean(item anthropic.BatchResultItem) Cleaned {
	c := Cleaned{CustomID: item.CustomID, Type: item.Type}
	if item.Type != "succeeded" || item.Message == nil {
		c.Value = map[string]any{"error": item.Type}
		return c
	}

	c.Text = item.Message.Text()
	stripped := StripCodeFences(c.Text)
	var v any
	if err := json.Unmarshal([]byte(stripped), &v); err != nil {
		c.Value = stripped
		return c
	}
	c.Value = v
	c.Valid = true
	return c
}

// Collection is the cleaned output of one iteration.
type Collection struct {
	Items []Cleaned
	Usage anthropic.TokenUsage
}

// Add appends the cleaned form of every item.
func (c *Collection) Add(items []anthropic.BatchResultItem) {
	for _, item := range items {
		c.Items = append(c.Items, Clean(item))
	}
}

// Corrected maps custom ids to cleaned values. Later items win.
func (c *Collection) Corrected() map[string]any {
	out := make(map[string]any, len(c.Items))
	for _, it := range c.Items {
		out[it.CustomID] = it.Value
	}
	return out
}

// Invalid returns the ids of non-JSON or failed items in stream order,
// without repeats.
func (c *Collection) Invalid() []string {
	var ids []string
	seen := make(map[string]bool)
	for _, it := range c.Items {
		if it.Valid || seen[it.CustomID] {
			continue
		}
		seen[it.CustomID] = true
		ids = append(ids, it.CustomID)
	}
	return ids
}

// Valid counts items whose text parsed as JSON.
func (c *Collection) Valid() int {
	n := 0
	for _, it := range c.Items {
		if it.Valid {
			n++
		}
	}
	return n
}
