package controller

import (
	"bufio"
	"encoding/json"
	"errors"
	"strings"

	"docrag-be/pkg/apperror"
	"docrag-be/pkg/rag/chat"

	"github.com/google/uuid"
)

// sseWriter frames chat events as server-sent events. Tokens go out as
// default "data:" events; state, error and done carry JSON.
type sseWriter struct {
	w       *bufio.Writer
	emitted bool
	failed  bool
	onGone  func()
}

type sseState struct {
	TurnId  uuid.UUID           `json:"turn_id"`
	State   chat.TurnState      `json:"state"`
	Options []chat.Continuation `json:"options,omitempty"`
}

type sseError struct {
	TurnId    uuid.UUID `json:"turn_id,omitempty"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

func newSSEWriter(w *bufio.Writer, onGone func()) *sseWriter {
	return &sseWriter{w: w, onGone: onGone}
}

// Sink is handed to the orchestrator. A failed flush means the client went
// away and cancels the turn.
func (s *sseWriter) Sink(ev chat.Event) {
	s.emitted = true
	switch ev.Type {
	case chat.EventToken:
		s.write("", ev.Token)
	case chat.EventState:
		s.writeJSON(string(ev.Type), sseState{TurnId: ev.TurnId, State: ev.State, Options: ev.Options})
	case chat.EventDone:
		s.writeJSON(string(ev.Type), sseState{TurnId: ev.TurnId, State: ev.State, Options: ev.Options})
	case chat.EventError:
		s.writeJSON(string(ev.Type), sseError{TurnId: ev.TurnId, Code: ev.Code, Message: ev.Error, Retryable: ev.Retryable})
	}
}

// Fail reports an error raised before the turn produced any event.
func (s *sseWriter) Fail(err error) {
	if s.emitted || err == nil {
		return
	}
	body := sseError{Message: err.Error(), Retryable: apperror.IsRetryable(err)}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		body.Code = appErr.Code
		body.Message = appErr.Message
	}
	s.writeJSON(string(chat.EventError), body)
}

func (s *sseWriter) writeJSON(event string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.write(event, string(payload))
}

func (s *sseWriter) write(event, data string) {
	if s.failed {
		return
	}
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	if _, err := s.w.WriteString(b.String()); err != nil {
		s.gone()
		return
	}
	if err := s.w.Flush(); err != nil {
		s.gone()
	}
}

func (s *sseWriter) gone() {
	s.failed = true
	if s.onGone != nil {
		s.onGone()
	}
}
