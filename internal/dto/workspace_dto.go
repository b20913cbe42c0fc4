package dto

import (
	"time"

	"github.com/google/uuid"
)

type RagConfigDTO struct {
	RetrieverType            string `json:"retriever_type" validate:"omitempty,oneof=vector graph"`
	ChunkAlgorithm           string `json:"chunk_algorithm"`
	ChunkSize                int    `json:"chunk_size" validate:"omitempty,min=1"`
	ChunkOverlap             int    `json:"chunk_overlap" validate:"omitempty,min=0"`
	EmbeddingAlgorithm       string `json:"embedding_algorithm"`
	EmbeddingDimension       int    `json:"embedding_dimension,omitempty"`
	TopK                     int    `json:"top_k" validate:"omitempty,min=1,max=50"`
	RerankEnabled            bool   `json:"rerank_enabled"`
	RerankAlgorithm          string `json:"rerank_algorithm,omitempty"`
	GraphHopCount            int    `json:"graph_hop_count,omitempty"`
	GraphExtractionAlgorithm string `json:"graph_extraction_algorithm,omitempty"`
}

type CreateWorkspaceRequest struct {
	Name        string        `json:"name" validate:"required,max=200"`
	Description string        `json:"description" validate:"max=2000"`
	RagConfig   *RagConfigDTO `json:"rag_config,omitempty"`
}

type UpdateRagConfigRequest struct {
	RagConfig RagConfigDTO `json:"rag_config" validate:"required"`
}

type WorkspaceResponse struct {
	Id            uuid.UUID    `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	RagConfig     RagConfigDTO `json:"rag_config"`
	Status        string       `json:"status"`
	StatusVersion int64        `json:"status_version"`
	StatusMessage *string      `json:"status_message,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     *time.Time   `json:"updated_at"`
}

type StatusResponse struct {
	Id      uuid.UUID `json:"id"`
	Status  string    `json:"status"`
	Version int64     `json:"version"`
	Message *string   `json:"message,omitempty"`
}
