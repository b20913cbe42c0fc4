package vectorindex

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorsFor(ws, doc uuid.UUID, values ...[]float32) []Vector {
	out := make([]Vector, len(values))
	for i, v := range values {
		out[i] = Vector{ChunkId: uuid.New(), DocumentId: doc, WorkspaceId: ws, Ordinal: i, Values: v}
	}
	return out
}

func TestMemoryIndex_SearchIsScopedToWorkspace(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	wsA, wsB := uuid.New(), uuid.New()
	docA, docB := uuid.New(), uuid.New()

	require.NoError(t, idx.ReplaceDocument(ctx, wsA, docA, vectorsFor(wsA, docA, []float32{1, 0}, []float32{0, 1})))
	require.NoError(t, idx.ReplaceDocument(ctx, wsB, docB, vectorsFor(wsB, docB, []float32{1, 0})))

	hits, err := idx.Search(ctx, wsA, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, wsA, h.WorkspaceId)
	}
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
}

func TestMemoryIndex_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ws, doc := uuid.New(), uuid.New()
	vecs := vectorsFor(ws, doc, []float32{1, 1}, []float32{2, 2}, []float32{3, 3})
	require.NoError(t, idx.ReplaceDocument(ctx, ws, doc, vecs))

	hits, err := idx.Search(ctx, ws, []float32{1, 1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, vecs[0].ChunkId, hits[0].ChunkId)
	assert.Equal(t, vecs[1].ChunkId, hits[1].ChunkId)
	assert.Equal(t, vecs[2].ChunkId, hits[2].ChunkId)
}

func TestMemoryIndex_ReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ws, doc1, doc2 := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, idx.ReplaceDocument(ctx, ws, doc1, vectorsFor(ws, doc1, []float32{1}, []float32{2}, []float32{3})))
	require.NoError(t, idx.ReplaceDocument(ctx, ws, doc2, vectorsFor(ws, doc2, []float32{1})))
	require.NoError(t, idx.ReplaceDocument(ctx, ws, doc1, vectorsFor(ws, doc1, []float32{1}, []float32{2})))

	count, err := idx.Count(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	removed, err := idx.DeleteByDocument(ctx, ws, doc1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	removed, err = idx.DeleteByWorkspace(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestMemoryIndex_RejectsForeignVectors(t *testing.T) {
	idx := NewMemoryIndex()
	ws, doc := uuid.New(), uuid.New()
	foreign := vectorsFor(uuid.New(), doc, []float32{1})

	err := idx.ReplaceDocument(context.Background(), ws, doc, foreign)
	assert.Error(t, err)
}
