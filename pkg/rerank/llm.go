package rerank

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"docrag-be/pkg/llm"
	"docrag-be/pkg/utils"

	"golang.org/x/sync/errgroup"
)

const relevancePrompt = `Rate how relevant the passage is to the question on a scale from 0 to 10.
Answer with a single number only.

Question: %s

Passage:
%s`

var scorePattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// LLMReranker asks the generation backend to grade each passage and blends
// the grade with the vector score. A passage whose grade cannot be obtained
// keeps its vector score.
type LLMReranker struct {
	provider    llm.LLMProvider
	concurrency int
	maxPassage  int
}

func NewLLMReranker(provider llm.LLMProvider) *LLMReranker {
	return &LLMReranker{provider: provider, concurrency: 4, maxPassage: 2000}
}

func (r *LLMReranker) Name() string {
	return "llm"
}

func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error) {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range out {
		g.Go(func() error {
			prompt := fmt.Sprintf(relevancePrompt, query, utils.TruncateRunes(out[i].Content, r.maxPassage))
			answer, err := r.provider.Generate(gctx, prompt, llm.WithTemperature(0), llm.WithMaxTokens(8))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return nil
			}
			if grade, ok := parseGrade(answer); ok {
				out[i].Score = clamp01(0.5*out[i].Score + 0.5*grade)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseGrade reads the first number in answer and maps 0..10 onto 0..1.
func parseGrade(answer string) (float64, bool) {
	m := scorePattern.FindString(answer)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return clamp01(v / 10), true
}
