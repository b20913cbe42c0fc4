package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestHashProvider_DeterministicUnitVectors(t *testing.T) {
	p := NewHashProvider(64)
	ctx := context.Background()

	a, err := p.Embed(ctx, []string{"Paris is the capital of France", "Paris is the capital of France"}, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Len(t, a[0], 64)
	assert.Equal(t, a[0], a[1])
	assert.InDelta(t, 1.0, norm(a[0]), 1e-5)
}

func TestHashProvider_EmptyTextIsZeroVector(t *testing.T) {
	p := NewHashProvider(16)
	out, err := p.Embed(context.Background(), []string{"the of"}, TaskRetrievalQuery)
	require.NoError(t, err)
	assert.Equal(t, 0.0, norm(out[0]))
}

func TestRegistry_UnknownAlgorithm(t *testing.T) {
	r := NewRegistry(NewHashProvider(8))

	p, err := r.Get("hash")
	require.NoError(t, err)
	assert.Equal(t, 8, p.Dimension())

	_, err = r.Get("word2vec")
	assert.Error(t, err)
	assert.Equal(t, []string{"hash"}, r.Names())
}
