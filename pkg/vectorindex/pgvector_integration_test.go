package vectorindex

import (
	"context"
	"os"
	"testing"

	"docrag-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real Postgres with the vector extension. Skipped unless
// DB_CONNECTION_STRING is set.
func newPgIndex(t *testing.T) *PgVectorIndex {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, database.PoolConfig{MaxOpenConns: 2, LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error)
	require.NoError(t, db.AutoMigrate(&ChunkVector{}))

	return NewPgVectorIndex(db)
}

func TestPgVectorIndex_Lifecycle(t *testing.T) {
	idx := newPgIndex(t)
	ctx := context.Background()
	wsA, wsB := uuid.New(), uuid.New()
	doc := uuid.New()
	t.Cleanup(func() {
		_, _ = idx.DeleteByWorkspace(ctx, wsA)
		_, _ = idx.DeleteByWorkspace(ctx, wsB)
	})

	require.NoError(t, idx.ReplaceDocument(ctx, wsA, doc, vectorsFor(wsA, doc, []float32{1, 0, 0}, []float32{0, 1, 0})))
	require.NoError(t, idx.ReplaceDocument(ctx, wsB, uuid.Nil, nil))

	hits, err := idx.Search(ctx, wsA, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, 0, hits[0].Ordinal)

	other, err := idx.Search(ctx, wsB, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, idx.ReplaceDocument(ctx, wsA, doc, vectorsFor(wsA, doc, []float32{0, 0, 1})))
	n, err := idx.Count(ctx, wsA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	removed, err := idx.DeleteByDocument(ctx, wsA, doc)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestPgVectorIndex_RejectsForeignVectors(t *testing.T) {
	idx := newPgIndex(t)
	ws, doc := uuid.New(), uuid.New()

	err := idx.ReplaceDocument(context.Background(), ws, doc, vectorsFor(uuid.New(), doc, []float32{1, 0}))
	assert.Error(t, err)
}
