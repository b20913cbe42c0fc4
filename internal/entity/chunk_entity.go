package entity

import (
	"time"

	"github.com/google/uuid"
)

type Chunk struct {
	Id          uuid.UUID
	DocumentId  uuid.UUID
	WorkspaceId uuid.UUID
	Ordinal     int
	Content     string
	Embedding   []float32
	CreatedAt   time.Time
}

func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

type ChunkEmbedding struct {
	ChunkId   uuid.UUID
	Embedding []float32
}
