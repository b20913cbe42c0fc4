package dto

import (
	"time"

	"github.com/google/uuid"
)

type UploadDocumentRequest struct {
	WorkspaceId uuid.UUID
	Filename    string
	Content     []byte
}

type DocumentResponse struct {
	Id           uuid.UUID  `json:"id"`
	WorkspaceId  uuid.UUID  `json:"workspace_id"`
	Filename     string     `json:"filename"`
	MimeType     string     `json:"mime_type"`
	SizeBytes    int64      `json:"size_bytes"`
	Status       string     `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	ChunkCount   int        `json:"chunk_count"`
	VectorCount  int        `json:"vector_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}
