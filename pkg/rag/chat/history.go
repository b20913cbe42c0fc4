package chat

import (
	"context"

	"docrag-be/internal/entity"
	"docrag-be/internal/repository/unitofwork"
	"docrag-be/pkg/llm"

	"github.com/google/uuid"
)

// loadHistory returns up to `window` earlier messages of the session in
// chronological order, leaving out the message that opened the current turn.
// Empty bot messages, such as a turn cancelled before its first token, are
// skipped.
func loadHistory(ctx context.Context, uow unitofwork.UnitOfWork, sessionId, current uuid.UUID, window int) ([]llm.Message, error) {
	if window <= 0 {
		return nil, nil
	}
	recent, err := uow.ChatMessageRepository().FindRecentBySession(ctx, sessionId, window+1)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(recent))
	for _, m := range recent {
		if m.Id == current || m.Content == "" {
			continue
		}
		role := llm.RoleUser
		if m.Role == entity.ChatMessageRoleBot {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	if len(messages) > window {
		messages = messages[len(messages)-window:]
	}
	return messages, nil
}
