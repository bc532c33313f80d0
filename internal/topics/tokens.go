// Package topics turns free text into interest tokens and picks the salient
// terms of a title corpus with a document-frequency bounded TF-IDF.
package topics

import (
	"regexp"
	"strings"
)

var tokenRx = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9_\-+]{2,}`)

// ExtractTokens returns up to maxTokens distinct lowercased tokens from text
// in first-seen order. A nil or empty stopword set selects the defaults.
func ExtractTokens(text string, maxTokens int, stopwords Set) []string {
	if text == "" || maxTokens <= 0 {
		return nil
	}
	sw := orDefault(stopwords)

	var toks []string
	seen := make(map[string]struct{})
	for _, m := range tokenRx.FindAllString(text, -1) {
		t := strings.ToLower(m)
		if sw.Has(t) || isDigits(t) || len(t) < 3 {
			continue
		}
		clean := strings.Trim(t, "_-+")
		if clean == "" || sw.Has(clean) {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		toks = append(toks, t)
		if len(toks) >= maxTokens {
			break
		}
	}
	return toks
}

// Bigrams joins adjacent token pairs with a single space, skipping pairs that
// repeat a token or contain a built-in stopword.
func Bigrams(tokens []string) []string {
	var out []string
	for i := 0; i+1 < len(tokens); i++ {
		a, b := tokens[i], tokens[i+1]
		if IsStopword(a) || IsStopword(b) || a == b {
			continue
		}
		out = append(out, a+" "+b)
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
