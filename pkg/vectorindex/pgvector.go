package vectorindex

import (
	"context"

	"docrag-be/pkg/apperror"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// ChunkVector is the row layout of the pgvector-backed index. The vector column has no fixed
// dimension because workspaces pick their own embedding backend.
type ChunkVector struct {
	Seq         int64           `gorm:"primaryKey;autoIncrement"`
	ChunkId     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	DocumentId  uuid.UUID       `gorm:"type:uuid;not null;index"`
	WorkspaceId uuid.UUID       `gorm:"type:uuid;not null;index"`
	Ordinal     int             `gorm:"not null"`
	Embedding   pgvector.Vector `gorm:"type:vector;not null"`
}

func (ChunkVector) TableName() string {
	return "chunk_vectors"
}

type PgVectorIndex struct {
	db *gorm.DB
}

func NewPgVectorIndex(db *gorm.DB) *PgVectorIndex {
	return &PgVectorIndex{db: db}
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return apperror.Wrap(apperror.ErrIndexUnavailable, err)
}

func (p *PgVectorIndex) ReplaceDocument(ctx context.Context, workspaceId, documentId uuid.UUID, vectors []Vector) error {
	for _, v := range vectors {
		if v.WorkspaceId != workspaceId || v.DocumentId != documentId {
			return apperror.ErrTenantIsolation
		}
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workspace_id = ? AND document_id = ?", workspaceId, documentId).Delete(&ChunkVector{}).Error; err != nil {
			return err
		}
		if len(vectors) == 0 {
			return nil
		}
		rows := make([]*ChunkVector, len(vectors))
		for i, v := range vectors {
			rows[i] = &ChunkVector{
				ChunkId:     v.ChunkId,
				DocumentId:  v.DocumentId,
				WorkspaceId: v.WorkspaceId,
				Ordinal:     v.Ordinal,
				Embedding:   pgvector.NewVector(v.Values),
			}
		}
		return tx.CreateInBatches(rows, 200).Error
	})
	return unavailable(err)
}

func (p *PgVectorIndex) Search(ctx context.Context, workspaceId uuid.UUID, query []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 5
	}

	// Cosine distance in pgvector is: 1 - cosine_similarity
	type result struct {
		ChunkVector
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(query)

	err := p.db.WithContext(ctx).
		Table("chunk_vectors").
		Select("chunk_vectors.*, 1 - (embedding <=> ?) as similarity", queryVector).
		Where("workspace_id = ?", workspaceId).
		Order(gorm.Expr("embedding <=> ?", queryVector)).
		Order("seq ASC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, unavailable(err)
	}

	hits := make([]Hit, len(results))
	for i, res := range results {
		hits[i] = Hit{
			ChunkId:     res.ChunkId,
			DocumentId:  res.DocumentId,
			WorkspaceId: res.WorkspaceId,
			Ordinal:     res.Ordinal,
			Seq:         res.Seq,
			Similarity:  res.Similarity,
			Values:      res.Embedding.Slice(),
		}
	}
	return hits, nil
}

func (p *PgVectorIndex) DeleteByDocument(ctx context.Context, workspaceId, documentId uuid.UUID) (int64, error) {
	res := p.db.WithContext(ctx).
		Where("workspace_id = ? AND document_id = ?", workspaceId, documentId).
		Delete(&ChunkVector{})
	return res.RowsAffected, unavailable(res.Error)
}

func (p *PgVectorIndex) DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) (int64, error) {
	res := p.db.WithContext(ctx).Where("workspace_id = ?", workspaceId).Delete(&ChunkVector{})
	return res.RowsAffected, unavailable(res.Error)
}

func (p *PgVectorIndex) Count(ctx context.Context, workspaceId uuid.UUID) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&ChunkVector{}).Where("workspace_id = ?", workspaceId).Count(&count).Error
	return count, unavailable(err)
}
