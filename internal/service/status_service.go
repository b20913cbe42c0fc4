package service

import (
	"context"
	"strings"
	"time"

	"docrag-be/internal/entity"
	"docrag-be/internal/repository/unitofwork"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/rag/broadcast"

	"github.com/google/uuid"
)

type IStatusService interface {
	// Subscribe opens a status stream for one workspace (including its
	// documents) or one document. The stream starts with a snapshot.
	Subscribe(ctx context.Context, ownerId uuid.UUID, workspaceId, documentId *uuid.UUID) (*broadcast.Subscription, error)
}

type statusService struct {
	uowFactory unitofwork.RepositoryFactory
	broker     *broadcast.Broker
}

func NewStatusService(uowFactory unitofwork.RepositoryFactory, broker *broadcast.Broker) IStatusService {
	return &statusService{uowFactory: uowFactory, broker: broker}
}

func (s *statusService) Subscribe(ctx context.Context, ownerId uuid.UUID, workspaceId, documentId *uuid.UUID) (*broadcast.Subscription, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	var topic string
	switch {
	case documentId != nil && workspaceId == nil:
		if _, err := ownedDocument(ctx, uow, ownerId, *documentId); err != nil {
			return nil, err
		}
		topic = broadcast.DocumentTopic(*documentId)
	case workspaceId != nil && documentId == nil:
		if _, err := ownedWorkspace(ctx, uow, ownerId, *workspaceId); err != nil {
			return nil, err
		}
		topic = broadcast.WorkspaceTopic(*workspaceId)
	default:
		return nil, apperror.Input("exactly one of workspace_id and document_id is required")
	}

	return s.broker.Subscribe(ctx, topic, s.Snapshot)
}

// Snapshot loads the current status of everything a topic covers.
func (s *statusService) Snapshot(ctx context.Context, topic string) ([]broadcast.StatusEvent, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	kind, rawId, _ := strings.Cut(topic, ":")
	id, err := uuid.Parse(rawId)
	if err != nil {
		return nil, apperror.Input("unknown status topic %q", topic)
	}

	switch broadcast.EntityKind(kind) {
	case broadcast.KindDocument:
		doc, err := uow.DocumentRepository().FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, nil
		}
		return []broadcast.StatusEvent{documentSnapshot(doc)}, nil

	case broadcast.KindWorkspace:
		workspace, err := uow.WorkspaceRepository().FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if workspace == nil {
			return nil, nil
		}
		docs, err := uow.DocumentRepository().FindAllByWorkspace(ctx, id)
		if err != nil {
			return nil, err
		}
		out := make([]broadcast.StatusEvent, 0, len(docs)+1)
		out = append(out, broadcast.StatusEvent{
			Kind:        broadcast.KindWorkspace,
			EntityId:    workspace.Id,
			WorkspaceId: workspace.Id,
			Status:      string(workspace.Status),
			Version:     workspace.StatusVersion,
			Message:     workspace.StatusMessage,
			OccurredAt:  lastUpdate(workspace.CreatedAt, workspace.UpdatedAt),
		})
		for _, doc := range docs {
			out = append(out, documentSnapshot(doc))
		}
		return out, nil
	}
	return nil, apperror.Input("unknown status topic %q", topic)
}

func documentSnapshot(doc *entity.Document) broadcast.StatusEvent {
	return broadcast.StatusEvent{
		Kind:        broadcast.KindDocument,
		EntityId:    doc.Id,
		WorkspaceId: doc.WorkspaceId,
		Status:      string(doc.Status),
		Version:     doc.StatusVersion,
		Message:     doc.ErrorMessage,
		OccurredAt:  lastUpdate(doc.CreatedAt, doc.UpdatedAt),
	}
}

func lastUpdate(created time.Time, updated *time.Time) time.Time {
	if updated != nil {
		return *updated
	}
	return created
}
