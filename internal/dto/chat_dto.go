package dto

import (
	"time"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	WorkspaceId uuid.UUID `json:"workspace_id" validate:"required"`
	Title       string    `json:"title" validate:"max=200"`
}

type SessionResponse struct {
	Id          uuid.UUID  `json:"id"`
	WorkspaceId uuid.UUID  `json:"workspace_id"`
	Title       string     `json:"title"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

type MessageResponse struct {
	Id        uuid.UUID               `json:"id"`
	TurnId    uuid.UUID               `json:"turn_id"`
	Role      string                  `json:"role"`
	Content   string                  `json:"content"`
	Status    string                  `json:"status"`
	Retrieval *entity.RetrievalResult `json:"retrieval,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required,notblank,max=4000"`
}

type ContinueTurnRequest struct {
	Choice string `json:"choice" validate:"required,oneof=upload_and_retry external_lookup continue_without_context"`
}

type SearchResponse struct {
	Result *entity.RetrievalResult `json:"result"`
}
