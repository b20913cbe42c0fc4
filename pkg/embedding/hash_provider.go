package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"docrag-be/pkg/utils"
)

// HashProvider is a local feature-hashing embedder: each token is hashed into one of
// `dimension` buckets with a hash-derived sign, weighted by log term frequency, then
// L2-normalised. It needs no model and no corpus preparation, so it is deterministic
// across restarts and suitable for offline deployments and tests.
type HashProvider struct {
	dimension int
}

func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashProvider{dimension: dimension}
}

func (p *HashProvider) Name() string {
	return "hash"
}

func (p *HashProvider) Dimension() int {
	return p.dimension
}

func (p *HashProvider) Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embedOne(text)
	}
	return out, nil
}

func (p *HashProvider) embedOne(text string) []float32 {
	counts := make(map[string]int)
	for _, tok := range utils.Tokenize(text) {
		counts[tok]++
	}

	vec := make([]float64, p.dimension)
	for tok, n := range counts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(p.dimension))
		sign := 1.0
		if (sum>>63)&1 == 1 {
			sign = -1.0
		}
		vec[bucket] += sign * (1 + math.Log(float64(n)))
	}

	values := make([]float32, p.dimension)
	for i, v := range vec {
		values[i] = float32(v)
	}
	return normalizeVector(values)
}
