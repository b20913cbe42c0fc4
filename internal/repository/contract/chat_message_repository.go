package contract

import (
	"context"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type ChatMessageRepository interface {
	Create(ctx context.Context, message *entity.ChatMessage) error
	// UpdateContent stores the latest content/status of a bot message.
	UpdateContent(ctx context.Context, id uuid.UUID, content string, status entity.MessageStatus) error
	FindBySession(ctx context.Context, sessionId uuid.UUID) ([]*entity.ChatMessage, error)
	// FindRecentBySession returns the last `limit` messages in chronological order.
	FindRecentBySession(ctx context.Context, sessionId uuid.UUID, limit int) ([]*entity.ChatMessage, error)
	DeleteBySession(ctx context.Context, sessionId uuid.UUID) error
	DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error
}
