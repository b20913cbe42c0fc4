package contract

import (
	"context"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type ChunkRepository interface {
	// ReplaceForDocument drops any chunks the document already has and inserts the new set.
	ReplaceForDocument(ctx context.Context, documentId uuid.UUID, chunks []*entity.Chunk) error
	FindByDocument(ctx context.Context, documentId uuid.UUID) ([]*entity.Chunk, error)
	FindPendingEmbedding(ctx context.Context, documentId uuid.UUID) ([]*entity.Chunk, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Chunk, error)
	UpdateEmbeddings(ctx context.Context, embeddings []entity.ChunkEmbedding) error
	CountByDocument(ctx context.Context, documentId uuid.UUID) (int64, error)
	DeleteByDocument(ctx context.Context, documentId uuid.UUID) error
	DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error
}
