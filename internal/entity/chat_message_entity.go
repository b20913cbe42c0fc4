package entity

import (
	"time"

	"github.com/google/uuid"
)

const (
	ChatMessageRoleUser = "user"
	ChatMessageRoleBot  = "bot"
)

type MessageStatus string

const (
	MessageStatusStreaming MessageStatus = "streaming"
	MessageStatusComplete  MessageStatus = "complete"
	MessageStatusCancelled MessageStatus = "cancelled"
	MessageStatusFailed    MessageStatus = "failed"
)

type ChatMessage struct {
	Id            uuid.UUID
	ChatSessionId uuid.UUID
	TurnId        uuid.UUID
	Role          string
	Content       string
	Status        MessageStatus
	Retrieval     *RetrievalResult
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}
