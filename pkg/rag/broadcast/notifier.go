package broadcast

import (
	"context"
	"time"

	"docrag-be/internal/pkg/logger"
	"docrag-be/pkg/events"

	"github.com/google/uuid"
)

// Mirror publishes events to an external bus. Mirroring is best effort.
type Mirror interface {
	Publish(ctx context.Context, event events.Event) error
}

// Notifier turns persisted status transitions into broadcast events, writes
// them to the status log and mirrors them.
type Notifier struct {
	broker    *Broker
	mirror    Mirror
	statusLog logger.ILogger
}

func NewNotifier(broker *Broker, mirror Mirror, statusLog logger.ILogger) *Notifier {
	return &Notifier{broker: broker, mirror: mirror, statusLog: statusLog}
}

func (n *Notifier) Broker() *Broker {
	return n.broker
}

func (n *Notifier) Document(ctx context.Context, workspaceId, documentId uuid.UUID, status string, version int64, message *string) {
	n.publish(ctx, StatusEvent{
		Kind:        KindDocument,
		EntityId:    documentId,
		WorkspaceId: workspaceId,
		Status:      status,
		Version:     version,
		Message:     message,
		OccurredAt:  time.Now(),
	})
}

func (n *Notifier) Workspace(ctx context.Context, workspaceId uuid.UUID, status string, version int64, message *string) {
	n.publish(ctx, StatusEvent{
		Kind:        KindWorkspace,
		EntityId:    workspaceId,
		WorkspaceId: workspaceId,
		Status:      status,
		Version:     version,
		Message:     message,
		OccurredAt:  time.Now(),
	})
}

// Mirror forwards a non-status event, such as a stage completion.
func (n *Notifier) Mirror(ctx context.Context, event events.Event) {
	if n.mirror == nil {
		return
	}
	if err := n.mirror.Publish(ctx, event); err != nil {
		n.statusLog.Warn("Broadcast", "Mirror publish failed", map[string]interface{}{
			"event": event.EventType(),
			"error": err.Error(),
		})
	}
}

func (n *Notifier) publish(ctx context.Context, ev StatusEvent) {
	details := map[string]interface{}{
		"kind":         ev.Kind,
		"entity_id":    ev.EntityId,
		"workspace_id": ev.WorkspaceId,
		"status":       ev.Status,
		"version":      ev.Version,
	}
	if ev.Message != nil {
		details["message"] = *ev.Message
	}
	n.statusLog.Info("Status", "Status changed", details)

	n.broker.Publish(ctx, ev)
	n.Mirror(ctx, ev)
}

// EventType, Payload and Timestamp let status events travel on the mirror.
func (ev StatusEvent) EventType() string {
	if ev.Kind == KindWorkspace {
		return events.WorkspaceStatusChanged
	}
	return events.DocumentStatusChanged
}

func (ev StatusEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"entity_id":    ev.EntityId.String(),
		"workspace_id": ev.WorkspaceId.String(),
		"status":       ev.Status,
		"version":      ev.Version,
	}
	if ev.Message != nil {
		p["message"] = *ev.Message
	}
	return p
}

func (ev StatusEvent) Timestamp() time.Time {
	return ev.OccurredAt
}
