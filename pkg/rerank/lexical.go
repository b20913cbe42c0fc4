package rerank

import (
	"context"

	"docrag-be/pkg/utils"
)

// LexicalReranker blends the vector score with the share of query terms
// that appear in the passage.
type LexicalReranker struct {
	vectorWeight float64
}

func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{vectorWeight: 0.7}
}

func (r *LexicalReranker) Name() string {
	return "lexical"
}

func (r *LexicalReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error) {
	terms := uniqueTerms(query)
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	if len(terms) == 0 {
		return out, nil
	}

	for i := range out {
		present := make(map[string]struct{})
		for _, tok := range utils.Tokenize(out[i].Content) {
			present[tok] = struct{}{}
		}
		hits := 0
		for _, term := range terms {
			if _, ok := present[term]; ok {
				hits++
			}
		}
		overlap := float64(hits) / float64(len(terms))
		out[i].Score = clamp01(r.vectorWeight*out[i].Score + (1-r.vectorWeight)*overlap)
	}
	return out, nil
}

func uniqueTerms(text string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, tok := range utils.Tokenize(text) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}
