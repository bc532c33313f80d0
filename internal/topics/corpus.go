package topics

import (
	"math"
	"sort"
)

// docTokenCap bounds tokenization of each corpus document.
const docTokenCap = 200

// SelectOptions tunes CorpusSelectTerms.
type SelectOptions struct {
	TopKPerDoc int
	MinDF      int
	MaxDFRatio float64
	UseBigrams bool
	Stopwords  Set
}

// DefaultSelectOptions returns top 5 terms per document, min df 2, max df
// ratio 0.5, with bigrams.
func DefaultSelectOptions() SelectOptions {
	return SelectOptions{
		TopKPerDoc: 5,
		MinDF:      2,
		MaxDFRatio: 0.5,
		UseBigrams: true,
	}
}

// DocumentFrequency counts, for every token, how many of docs contain it.
// Each doc is tokenized with the given stopwords and capped at 200 tokens.
func DocumentFrequency(docs []string, stopwords Set) map[string]int {
	df := make(map[string]int)
	for _, d := range docs {
		for _, tok := range ExtractTokens(d, docTokenCap, stopwords) {
			df[tok]++
		}
	}
	return df
}

// CorpusSelectTerms returns, for each text, its highest scoring terms under
// score = tf * (ln(1 + N/(1+df)) + 1). Terms outside the df bounds never
// score and so never appear in the output. Ties keep first-occurrence order.
func CorpusSelectTerms(texts []string, opts SelectOptions) [][]string {
	n := len(texts)
	if n == 0 {
		return nil
	}
	sw := orDefault(opts.Stopwords)

	effMinDF := opts.MinDF
	if n < opts.MinDF {
		effMinDF = 1
	}

	docTerms := make([][]string, n)
	df := make(map[string]int)
	for i, text := range texts {
		terms := ExtractTokens(text, docTokenCap, sw)
		if opts.UseBigrams {
			terms = append(terms, Bigrams(terms)...)
		}
		docTerms[i] = terms

		seen := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}

	idf := make(map[string]float64, len(df))
	for term, d := range df {
		if d < effMinDF {
			continue
		}
		if float64(d)/float64(n) > opts.MaxDFRatio {
			continue
		}
		idf[term] = math.Log(1+float64(n)/(1+float64(d))) + 1
	}

	type scored struct {
		term  string
		score float64
	}

	selected := make([][]string, n)
	for i, terms := range docTerms {
		tf := make(map[string]int)
		var order []string
		for _, term := range terms {
			if _, ok := idf[term]; !ok {
				continue
			}
			if tf[term] == 0 {
				order = append(order, term)
			}
			tf[term]++
		}

		ranked := make([]scored, 0, len(order))
		for _, term := range order {
			ranked = append(ranked, scored{term: term, score: float64(tf[term]) * idf[term]})
		}
		sort.SliceStable(ranked, func(a, b int) bool {
			return ranked[a].score > ranked[b].score
		})

		k := opts.TopKPerDoc
		if k > len(ranked) || k < 0 {
			k = len(ranked)
		}
		out := make([]string, 0, k)
		for _, r := range ranked[:k] {
			out = append(out, r.term)
		}
		selected[i] = out
	}
	return selected
}
