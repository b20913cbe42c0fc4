package implementation

import (
	"context"

	"docrag-be/internal/entity"
	"docrag-be/internal/mapper"
	"docrag-be/internal/model"
	"docrag-be/internal/repository/contract"
	"docrag-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

const chunkInsertBatchSize = 200

type ChunkRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChunkMapper
}

func NewChunkRepository(db *gorm.DB) contract.ChunkRepository {
	return &ChunkRepositoryImpl{
		db:     db,
		mapper: mapper.NewChunkMapper(),
	}
}

func (r *ChunkRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChunkRepositoryImpl) findAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Chunk, error) {
	var models []*model.DocumentChunk
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Chunk, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *ChunkRepositoryImpl) ReplaceForDocument(ctx context.Context, documentId uuid.UUID, chunks []*entity.Chunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentId).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}

		models := make([]*model.DocumentChunk, len(chunks))
		for i, c := range chunks {
			models[i] = r.mapper.ToModel(c)
		}
		if err := tx.CreateInBatches(models, chunkInsertBatchSize).Error; err != nil {
			return err
		}

		// Update IDs back to entities
		for i, m := range models {
			*chunks[i] = *r.mapper.ToEntity(m)
		}
		return nil
	})
}

func (r *ChunkRepositoryImpl) FindByDocument(ctx context.Context, documentId uuid.UUID) ([]*entity.Chunk, error) {
	return r.findAll(ctx,
		specification.ByDocumentID{DocumentID: documentId},
		specification.OrderBy{Field: "ordinal"},
	)
}

func (r *ChunkRepositoryImpl) FindPendingEmbedding(ctx context.Context, documentId uuid.UUID) ([]*entity.Chunk, error) {
	return r.findAll(ctx,
		specification.ByDocumentID{DocumentID: documentId},
		specification.EmbeddingMissing{},
		specification.OrderBy{Field: "ordinal"},
	)
}

func (r *ChunkRepositoryImpl) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Chunk, error) {
	if len(ids) == 0 {
		return []*entity.Chunk{}, nil
	}
	return r.findAll(ctx, specification.ByIDs{IDs: ids})
}

func (r *ChunkRepositoryImpl) UpdateEmbeddings(ctx context.Context, embeddings []entity.ChunkEmbedding) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range embeddings {
			vec := pgvector.NewVector(e.Embedding)
			if err := tx.Model(&model.DocumentChunk{}).Where("id = ?", e.ChunkId).Update("embedding", &vec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ChunkRepositoryImpl) CountByDocument(ctx context.Context, documentId uuid.UUID) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx), specification.ByDocumentID{DocumentID: documentId})
	err := query.Model(&model.DocumentChunk{}).Count(&count).Error
	return count, err
}

func (r *ChunkRepositoryImpl) DeleteByDocument(ctx context.Context, documentId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentId).Delete(&model.DocumentChunk{}).Error
}

func (r *ChunkRepositoryImpl) DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("workspace_id = ?", workspaceId).Delete(&model.DocumentChunk{}).Error
}
