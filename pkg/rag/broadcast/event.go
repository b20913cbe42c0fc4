package broadcast

import (
	"time"

	"github.com/google/uuid"
)

type EntityKind string

const (
	KindDocument  EntityKind = "document"
	KindWorkspace EntityKind = "workspace"
)

// StatusEvent is one status value of a document or workspace. Version
// increases with every transition of the entity and orders events for it.
type StatusEvent struct {
	Kind        EntityKind `json:"kind"`
	EntityId    uuid.UUID  `json:"entity_id"`
	WorkspaceId uuid.UUID  `json:"workspace_id"`
	Status      string     `json:"status"`
	Version     int64      `json:"version"`
	Message     *string    `json:"message,omitempty"`
	Snapshot    bool       `json:"snapshot"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

func DocumentTopic(id uuid.UUID) string {
	return "document:" + id.String()
}

func WorkspaceTopic(id uuid.UUID) string {
	return "workspace:" + id.String()
}

// topicsFor lists the topics an event is delivered on: its own entity topic,
// plus the workspace topic for document events.
func topicsFor(ev StatusEvent) []string {
	if ev.Kind == KindDocument {
		return []string{DocumentTopic(ev.EntityId), WorkspaceTopic(ev.WorkspaceId)}
	}
	return []string{WorkspaceTopic(ev.EntityId)}
}
