package events

import (
	"time"

	"github.com/google/uuid"
)

// Job topics feed the stage workers.
const (
	TopicParseJobs = "pipeline.parse"
	TopicChunkJobs = "pipeline.chunk"
	TopicEmbedJobs = "pipeline.embed"
	TopicIndexJobs = "pipeline.index"
)

// Stage-completion events, produced by workers and consumed by the coordinator.
const (
	DocumentParsed   = "document.parsed"
	DocumentChunked  = "document.chunked"
	DocumentEmbedded = "document.embedded"
	DocumentIndexed  = "document.indexed"
	DocumentFailed   = "document.failed"
)

// Status events are mirrored for observers outside the process.
const (
	DocumentStatusChanged  = "document.status"
	WorkspaceStatusChanged = "workspace.status"
)

// CompletionTopics lists every topic the coordinator listens on.
var CompletionTopics = []string{DocumentParsed, DocumentChunked, DocumentEmbedded, DocumentIndexed, DocumentFailed}

// StageJob asks a worker to run one stage for one document.
type StageJob struct {
	DocumentId  uuid.UUID `json:"document_id"`
	WorkspaceId uuid.UUID `json:"workspace_id"`
	Stage       string    `json:"stage"`
}

// StageEvent reports the outcome of a stage.
type StageEvent struct {
	Type        string    `json:"type"`
	DocumentId  uuid.UUID `json:"document_id"`
	WorkspaceId uuid.UUID `json:"workspace_id"`
	Stage       string    `json:"stage"`
	TextKey     string    `json:"text_key,omitempty"`
	ChunkCount  int       `json:"chunk_count,omitempty"`
	VectorCount int       `json:"vector_count,omitempty"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (e StageEvent) EventType() string {
	return e.Type
}

func (e StageEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"document_id":  e.DocumentId.String(),
		"workspace_id": e.WorkspaceId.String(),
		"stage":        e.Stage,
	}
	switch e.Type {
	case DocumentParsed:
		p["text_key"] = e.TextKey
	case DocumentChunked:
		p["chunk_count"] = e.ChunkCount
	case DocumentEmbedded, DocumentIndexed:
		p["vector_count"] = e.VectorCount
	case DocumentFailed:
		p["error"] = e.Error
	}
	return p
}

func (e StageEvent) Timestamp() time.Time {
	return e.OccurredAt
}
