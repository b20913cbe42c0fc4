package vectorindex

import (
	"context"
	"math"

	"github.com/google/uuid"
)

// Vector is one chunk embedding as stored in the index.
type Vector struct {
	ChunkId     uuid.UUID
	DocumentId  uuid.UUID
	WorkspaceId uuid.UUID
	Ordinal     int
	Values      []float32
}

// Hit is a search result. Similarity is raw cosine similarity in [-1,1];
// Seq is the index insertion order, used for stable tie breaking.
type Hit struct {
	ChunkId     uuid.UUID
	DocumentId  uuid.UUID
	WorkspaceId uuid.UUID
	Ordinal     int
	Seq         int64
	Similarity  float64
	Values      []float32
}

// Index is a vector index partitioned by workspace. Every read and write names the workspace.
type Index interface {
	// ReplaceDocument atomically swaps every vector of documentId for the given set.
	ReplaceDocument(ctx context.Context, workspaceId, documentId uuid.UUID, vectors []Vector) error
	Search(ctx context.Context, workspaceId uuid.UUID, query []float32, limit int) ([]Hit, error)
	DeleteByDocument(ctx context.Context, workspaceId, documentId uuid.UUID) (int64, error)
	DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) (int64, error)
	Count(ctx context.Context, workspaceId uuid.UUID) (int64, error)
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}
