package chat

import "github.com/google/uuid"

type EventType string

const (
	EventState EventType = "state"
	EventToken EventType = "token"
	EventError EventType = "error"
	EventDone  EventType = "done"
)

// Event is what a caller observes while a turn runs. Tokens arrive in the
// order they were appended.
type Event struct {
	Type   EventType `json:"type"`
	TurnId uuid.UUID `json:"turn_id"`
	State  TurnState `json:"state,omitempty"`
	Token  string    `json:"token,omitempty"`
	Error  string    `json:"error,omitempty"`
	// Code and Retryable classify Error so clients can offer a retry.
	Code      string         `json:"code,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	Options   []Continuation `json:"options,omitempty"`
}

// Sink receives events synchronously on the goroutine driving the turn.
type Sink func(Event)

func discard(Event) {}
