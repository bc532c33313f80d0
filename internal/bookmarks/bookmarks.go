// Package bookmarks flattens browser bookmark exports into canonical URLs.
package bookmarks

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/matthewjhunter/onboard/internal/urltools"
)

// Bookmark is one flattened entry. ItemID is derived from the canonical URL.
type Bookmark struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	ItemID string `json:"item_id"`
}

// chromeRoots is the order Chrome lists its top-level folders in.
var chromeRoots = []string{"bookmark_bar", "other", "synced"}

// FlattenFile reads and flattens a bookmarks JSON file.
func FlattenFile(path string) ([]Bookmark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bookmarks file: %w", err)
	}
	return Flatten(data)
}

// Flatten walks a bookmarks document and returns its links, deduplicated
// by canonical URL with the first title winning. Accepted shapes are a
// Chrome export (top-level "roots"), a bare object of folders, or a list
// of folders. Nodes carry links in "url" or "href", names in "name" or
// "title", and children in "children" or "contents".
func Flatten(data []byte) ([]Bookmark, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse bookmarks: %w", err)
	}

	var roots []any
	switch v := doc.(type) {
	case map[string]any:
		if r, ok := v["roots"]; ok && truthy(r) {
			roots = rootValues(r)
		} else {
			roots = rootValues(v)
		}
	case []any:
		roots = v
	}

	seen := make(map[string]struct{})
	var out []Bookmark
	for _, root := range roots {
		if m, ok := root.(map[string]any); ok {
			walk(m, seen, &out)
		}
	}
	return out, nil
}

func walk(node map[string]any, seen map[string]struct{}, out *[]Bookmark) {
	raw := firstString(node, "url", "href")
	if raw != "" {
		if canon, id := urltools.CanonicalID(raw); canon != "" {
			if _, dup := seen[canon]; !dup {
				seen[canon] = struct{}{}
				*out = append(*out, Bookmark{
					URL:    canon,
					Title:  strings.TrimSpace(firstString(node, "name", "title")),
					ItemID: id,
				})
			}
		}
	}

	children, _ := node["children"].([]any)
	if len(children) == 0 {
		children, _ = node["contents"].([]any)
	}
	for _, c := range children {
		if m, ok := c.(map[string]any); ok {
			walk(m, seen, out)
		}
	}
}

// rootValues returns the folders under a roots container in a stable order:
// Chrome's own folders first, then any other keys sorted.
func rootValues(v any) []any {
	switch r := v.(type) {
	case []any:
		return r
	case map[string]any:
		var out []any
		done := make(map[string]bool)
		for _, k := range chromeRoots {
			if child, ok := r[k]; ok {
				out = append(out, child)
				done[k] = true
			}
		}
		keys := make([]string, 0, len(r))
		for k := range r {
			if !done[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, r[k])
		}
		return out
	}
	return nil
}

func firstString(node map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := node[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}
