package contract

import (
	"context"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type ChatSessionRepository interface {
	Create(ctx context.Context, session *entity.ChatSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error)
	FindAllByWorkspace(ctx context.Context, workspaceId, ownerId uuid.UUID) ([]*entity.ChatSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error
}
