// Package urltools canonicalizes URLs and derives content-addressed item ids
// from them.
package urltools

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

var trackingKeys = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
}

var (
	defaultPortRx = regexp.MustCompile(`:(80|443)$`)
	slashesRx     = regexp.MustCompile(`//+`)
)

// Canonicalize lowercases scheme and host, strips default ports, collapses
// repeated slashes, drops a trailing slash (except for the root path),
// removes tracking and blank query parameters, and drops the fragment.
// Unparseable input is returned as given.
func Canonicalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	host := defaultPortRx.ReplaceAllString(strings.ToLower(u.Host), "")

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	path = slashesRx.ReplaceAllString(path, "/")
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if q := cleanQuery(u.RawQuery); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String()
}

// cleanQuery keeps parameter order, which url.Values.Encode would not.
func cleanQuery(raw string) string {
	if raw == "" {
		return ""
	}
	var kept []string
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		if val == "" || trackingKeys[key] {
			continue
		}
		kept = append(kept, url.QueryEscape(key)+"="+url.QueryEscape(val))
	}
	return strings.Join(kept, "&")
}

// ItemID is the hex SHA-1 of a canonical URL.
func ItemID(canonicalURL string) string {
	sum := sha1.Sum([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// CanonicalID canonicalizes raw and returns both the canonical URL and its
// item id. An empty canonical URL yields an empty id.
func CanonicalID(raw string) (string, string) {
	c := Canonicalize(raw)
	if c == "" {
		return "", ""
	}
	return c, ItemID(c)
}
