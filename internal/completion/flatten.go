package completion

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/dream/entity"
)

// ParseSimilar decodes a find-similar reply into a list. Replies that are not
// a JSON array (or an object carrying one under "similar") become a single
// text item holding the raw reply.
func ParseSimilar(content string) []any {
	content = StripFences(content)
	if gjson.Valid(content) {
		v := gjson.Parse(content)
		if v.IsObject() {
			v = v.Get("similar")
		}
		if v.IsArray() {
			var out []any
			if err := json.Unmarshal([]byte(v.Raw), &out); err == nil {
				return out
			}
		}
	}
	return []any{entity.Artwork{Type: "text", Desc: content}}
}

// FlattenSimilar normalizes the two reply shapes the model produces. A flat
// list (first item has title and author) is returned as is. A list of
// {motif, works:[...]} groups is flattened into artworks, deduplicated by
// title and author, and capped at entity.MaxArtworks. Anything else passes
// through unchanged.
func FlattenSimilar(items []any) []any {
	if len(items) == 0 {
		return items
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return items
	}
	_, hasTitle := first["title"]
	_, hasAuthor := first["author"]
	if hasTitle && hasAuthor {
		return items
	}
	if _, grouped := first["works"].([]any); !grouped {
		return items
	}

	out := make([]any, 0, entity.MaxArtworks)
	seen := make(map[string]struct{})
	for _, it := range items {
		group, ok := it.(map[string]any)
		if !ok {
			continue
		}
		works, _ := group["works"].([]any)
		for _, w := range works {
			work, ok := w.(map[string]any)
			if !ok {
				continue
			}
			a := entity.Artwork{
				Title:  str(work, "title"),
				Type:   str(work, "type"),
				Author: str(work, "author"),
				Desc:   str(work, "desc", "description"),
				Value:  str(work, "value"),
			}
			key := strings.ToLower(a.Title) + "\x00" + strings.ToLower(a.Author)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, a)
			if len(out) == entity.MaxArtworks {
				return out
			}
		}
	}
	return out
}

// str returns the first string value found under keys.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			return s
		}
	}
	return ""
}
