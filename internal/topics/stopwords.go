package topics

// Set is a membership set of lowercased tokens.
type Set map[string]struct{}

// NewSet builds a Set from the given words.
func NewSet(words ...string) Set {
	s := make(Set, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// Has reports whether w is in the set.
func (s Set) Has(w string) bool {
	_, ok := s[w]
	return ok
}

// Words returns the members of s in no particular order.
func (s Set) Words() []string {
	out := make([]string, 0, len(s))
	for w := range s {
		out = append(out, w)
	}
	return out
}

// English function words plus URL and markup noise that shows up in titles.
var defaultStopwords = NewSet(
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
	"from", "how", "has", "he", "in", "is", "it", "its", "of", "on",
	"that", "the", "to", "was", "were", "will", "with", "you", "your",
	"www", "http", "https", "com", "net", "org", "io", "dev", "amp",
	"html", "htm", "php", "json", "xml", "rss", "atom", "index", "home",
	"about", "contact",
)

// DefaultStopwords returns a copy of the built-in stopword set.
func DefaultStopwords() Set {
	out := make(Set, len(defaultStopwords))
	for w := range defaultStopwords {
		out[w] = struct{}{}
	}
	return out
}

// IsStopword reports whether tok is in the built-in stopword set.
func IsStopword(tok string) bool {
	return defaultStopwords.Has(tok)
}

func orDefault(s Set) Set {
	if len(s) == 0 {
		return defaultStopwords
	}
	return s
}
