package mapper

import (
	"docrag-be/internal/entity"
	"docrag-be/internal/model"

	"github.com/pgvector/pgvector-go"
)

type ChunkMapper struct{}

func NewChunkMapper() *ChunkMapper {
	return &ChunkMapper{}
}

func (m *ChunkMapper) ToEntity(c *model.DocumentChunk) *entity.Chunk {
	if c == nil {
		return nil
	}

	var embedding []float32
	if c.Embedding != nil {
		embedding = c.Embedding.Slice()
	}

	return &entity.Chunk{
		Id:          c.Id,
		DocumentId:  c.DocumentId,
		WorkspaceId: c.WorkspaceId,
		Ordinal:     c.Ordinal,
		Content:     c.Content,
		Embedding:   embedding,
		CreatedAt:   c.CreatedAt,
	}
}

func (m *ChunkMapper) ToModel(c *entity.Chunk) *model.DocumentChunk {
	if c == nil {
		return nil
	}

	var embedding *pgvector.Vector
	if len(c.Embedding) > 0 {
		v := pgvector.NewVector(c.Embedding)
		embedding = &v
	}

	return &model.DocumentChunk{
		Id:          c.Id,
		DocumentId:  c.DocumentId,
		WorkspaceId: c.WorkspaceId,
		Ordinal:     c.Ordinal,
		Content:     c.Content,
		Embedding:   embedding,
		CreatedAt:   c.CreatedAt,
	}
}
