package entity

import "github.com/google/uuid"

// RetrievedPassage is one scored chunk reference in a RetrievalResult.
type RetrievedPassage struct {
	ChunkId      uuid.UUID `json:"chunk_id"`
	DocumentId   uuid.UUID `json:"document_id"`
	DocumentName string    `json:"document_name"`
	Ordinal      int       `json:"ordinal"`
	Content      string    `json:"content"`
	Score        float64   `json:"score"`
}

// RetrievalResult is ordered by descending score, bounded by top-K, without duplicate chunks.
type RetrievalResult struct {
	WorkspaceId uuid.UUID          `json:"workspace_id"`
	Query       string             `json:"query"`
	Passages    []RetrievedPassage `json:"passages"`
	// Source is "index" for workspace retrieval and "external" for enhancement content.
	Source string `json:"source,omitempty"`
}

func (r *RetrievalResult) IsEmpty() bool {
	return r == nil || len(r.Passages) == 0
}
