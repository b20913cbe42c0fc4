package chat

import (
	"context"
	"sync"
	"time"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type TurnState string

const (
	StateIdle       TurnState = "idle"
	StateRetrieving TurnState = "retrieving"
	StateNoContext  TurnState = "no_context_prompt"
	StateGenerating TurnState = "generating"
	StateStreaming  TurnState = "streaming"
	StateCompleted  TurnState = "completed"
	StateCancelled  TurnState = "cancelled"
	StateFailed     TurnState = "failed"
)

// Resting reports whether the turn no longer runs. A turn waiting for a
// continuation choice is resting but still open.
func (s TurnState) Resting() bool {
	switch s {
	case StateNoContext, StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

func (s TurnState) Final() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

type Continuation string

const (
	ContinueUploadAndRetry Continuation = "upload_and_retry"
	ContinueExternalLookup Continuation = "external_lookup"
	ContinueWithoutContext Continuation = "continue_without_context"
)

var continuations = []Continuation{ContinueUploadAndRetry, ContinueExternalLookup, ContinueWithoutContext}

func (c Continuation) IsValid() bool {
	for _, known := range continuations {
		if c == known {
			return true
		}
	}
	return false
}

// TurnSnapshot is a copy of a turn safe to hand to callers.
type TurnSnapshot struct {
	Id            uuid.UUID               `json:"id"`
	SessionId     uuid.UUID               `json:"session_id"`
	State         TurnState               `json:"state"`
	Query         string                  `json:"query"`
	Content       string                  `json:"content"`
	Retrieval     *entity.RetrievalResult `json:"retrieval,omitempty"`
	Options       []Continuation          `json:"options,omitempty"`
	Error         string                  `json:"error,omitempty"`
	UserMessageId uuid.UUID               `json:"user_message_id"`
	BotMessageId  *uuid.UUID              `json:"bot_message_id,omitempty"`
	StartedAt     time.Time               `json:"started_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

type turn struct {
	mu sync.Mutex

	id            uuid.UUID
	sessionId     uuid.UUID
	workspaceId   uuid.UUID
	query         string
	userMessageId uuid.UUID
	botMessageId  *uuid.UUID
	state         TurnState
	content       []byte
	retrieval     *entity.RetrievalResult
	errMessage    string
	startedAt     time.Time
	updatedAt     time.Time

	// busy is set while a goroutine drives the turn.
	busy      bool
	cancelled bool
	cancel    context.CancelFunc
}

func (t *turn) snapshot() *TurnSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *turn) snapshotLocked() *TurnSnapshot {
	s := &TurnSnapshot{
		Id:            t.id,
		SessionId:     t.sessionId,
		State:         t.state,
		Query:         t.query,
		Content:       string(t.content),
		Retrieval:     t.retrieval,
		Error:         t.errMessage,
		UserMessageId: t.userMessageId,
		BotMessageId:  t.botMessageId,
		StartedAt:     t.startedAt,
		UpdatedAt:     t.updatedAt,
	}
	if t.state == StateNoContext {
		s.Options = append([]Continuation(nil), continuations...)
	}
	return s
}

func (t *turn) setState(s TurnState) {
	t.mu.Lock()
	t.state = s
	t.updatedAt = time.Now()
	t.mu.Unlock()
}

// appendToken adds a token unless the turn was cancelled. Once Cancel has
// returned no token is ever appended again.
func (t *turn) appendToken(tok string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.content = append(t.content, tok...)
	t.updatedAt = time.Now()
	return true
}

func (t *turn) requestCancel() {
	t.mu.Lock()
	t.cancelled = true
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *turn) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}
