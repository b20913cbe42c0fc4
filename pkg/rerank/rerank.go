package rerank

import (
	"context"
	"sort"

	"docrag-be/pkg/apperror"
)

// Candidate is a retrieved passage with its current relevance in [0,1].
type Candidate struct {
	ID      string
	Content string
	Score   float64
}

// Reranker rescores candidates for a query. It returns the same candidates
// with new scores in [0,1]; ordering and truncation are up to the caller.
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error)
}

type Registry struct {
	rerankers map[string]Reranker
}

func NewRegistry() *Registry {
	return &Registry{rerankers: make(map[string]Reranker)}
}

func (r *Registry) Register(rr Reranker) {
	r.rerankers[rr.Name()] = rr
}

func (r *Registry) Get(name string) (Reranker, error) {
	rr, ok := r.rerankers[name]
	if !ok {
		return nil, apperror.WithMessage(apperror.ErrUnknownAlgorithm, "unknown rerank algorithm %q", name)
	}
	return rr, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.rerankers))
	for name := range r.rerankers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
