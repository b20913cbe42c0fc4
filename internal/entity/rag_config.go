package entity

import "docrag-be/pkg/apperror"

const (
	RetrieverVector = "vector"
	RetrieverGraph  = "graph"

	MinTopK = 1
	MaxTopK = 50
)

type RagConfig struct {
	RetrieverType string `json:"retriever_type"`

	ChunkAlgorithm     string `json:"chunk_algorithm"`
	ChunkSize          int    `json:"chunk_size"`
	ChunkOverlap       int    `json:"chunk_overlap"`
	EmbeddingAlgorithm string `json:"embedding_algorithm"`
	// EmbeddingDimension is resolved from the embedding backend during provisioning.
	EmbeddingDimension int    `json:"embedding_dimension"`
	TopK               int    `json:"top_k"`
	RerankEnabled      bool   `json:"rerank_enabled"`
	RerankAlgorithm    string `json:"rerank_algorithm,omitempty"`

	GraphHopCount            int    `json:"graph_hop_count,omitempty"`
	GraphExtractionAlgorithm string `json:"graph_extraction_algorithm,omitempty"`
}

func DefaultRagConfig(embedding string) RagConfig {
	return RagConfig{
		RetrieverType:      RetrieverVector,
		ChunkAlgorithm:     "fixed",
		ChunkSize:          1000,
		ChunkOverlap:       200,
		EmbeddingAlgorithm: embedding,
		TopK:               5,
		RerankEnabled:      false,
	}
}

// Validate checks structural constraints. Algorithm names are resolved against registries elsewhere.
func (c RagConfig) Validate() error {
	switch c.RetrieverType {
	case RetrieverVector:
		if c.ChunkAlgorithm == "" || c.EmbeddingAlgorithm == "" {
			return apperror.WithMessage(apperror.ErrInvalidRagConfig, "chunk_algorithm and embedding_algorithm are required")
		}
		if c.ChunkSize <= 0 {
			return apperror.WithMessage(apperror.ErrInvalidRagConfig, "chunk_size must be positive")
		}
		if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
			return apperror.WithMessage(apperror.ErrInvalidRagConfig, "chunk_overlap must be between 0 and chunk_size-1")
		}
		if c.RerankEnabled && c.RerankAlgorithm == "" {
			return apperror.WithMessage(apperror.ErrInvalidRagConfig, "rerank_algorithm is required when rerank is enabled")
		}
	case RetrieverGraph:
		if c.GraphHopCount < 1 || c.GraphHopCount > 5 {
			return apperror.WithMessage(apperror.ErrInvalidRagConfig, "graph_hop_count must be between 1 and 5")
		}
		if c.GraphExtractionAlgorithm == "" {
			return apperror.WithMessage(apperror.ErrInvalidRagConfig, "graph_extraction_algorithm is required")
		}
	default:
		return apperror.WithMessage(apperror.ErrInvalidRagConfig, "unknown retriever_type %q", c.RetrieverType)
	}
	if c.TopK < MinTopK || c.TopK > MaxTopK {
		return apperror.WithMessage(apperror.ErrInvalidRagConfig, "top_k must be between %d and %d", MinTopK, MaxTopK)
	}
	return nil
}
