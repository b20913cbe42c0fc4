package service

import (
	"errors"
	"testing"

	"docrag-be/internal/dto"
	"docrag-be/internal/entity"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/rag/chat"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatService_SessionLifecycle(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()

	session, err := h.chat.CreateSession(h.ctx, h.owner, &dto.CreateSessionRequest{WorkspaceId: ws.Id})
	require.NoError(t, err)
	assert.Equal(t, defaultSessionTitle, session.Title)

	sessions, err := h.chat.GetSessions(h.ctx, h.owner, ws.Id)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	require.NoError(t, h.chat.DeleteSession(h.ctx, h.owner, session.Id))
	sessions, err = h.chat.GetSessions(h.ctx, h.owner, ws.Id)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestChatService_GroundedTurnIsPersisted(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()
	doc := h.upload(ws.Id, "handbook.txt", handbook)
	h.waitDocument(doc.Id, entity.StatusReady)

	session, err := h.chat.CreateSession(h.ctx, h.owner, &dto.CreateSessionRequest{WorkspaceId: ws.Id, Title: "Leave"})
	require.NoError(t, err)

	var tokens []string
	snap, err := h.chat.SendMessage(h.ctx, h.owner, session.Id, handbook, func(ev chat.Event) {
		if ev.Type == chat.EventToken {
			tokens = append(tokens, ev.Token)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, chat.StateCompleted, snap.State)
	assert.Equal(t, []string{"noted ", "and ", "answered "}, tokens)

	messages, err := h.chat.GetMessages(h.ctx, h.owner, session.Id)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, entity.ChatMessageRoleUser, messages[0].Role)
	assert.Equal(t, entity.ChatMessageRoleBot, messages[1].Role)
	assert.Equal(t, "noted and answered ", messages[1].Content)
	require.NotNil(t, messages[1].Retrieval)
	assert.Equal(t, doc.Id, messages[1].Retrieval.Passages[0].DocumentId)

	current, err := h.chat.CurrentTurn(h.ctx, h.owner, session.Id)
	require.NoError(t, err)
	assert.Equal(t, snap.Id, current.Id)
}

func TestChatService_EmptyWorkspaceAsksForChoice(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()
	session, err := h.chat.CreateSession(h.ctx, h.owner, &dto.CreateSessionRequest{WorkspaceId: ws.Id})
	require.NoError(t, err)

	snap, err := h.chat.SendMessage(h.ctx, h.owner, session.Id, "what is the leave policy", nil)
	require.NoError(t, err)
	require.Equal(t, chat.StateNoContext, snap.State)
	assert.ElementsMatch(t, []chat.Continuation{
		chat.ContinueUploadAndRetry, chat.ContinueExternalLookup, chat.ContinueWithoutContext,
	}, snap.Options)

	done, err := h.chat.Continue(h.ctx, h.owner, session.Id, snap.Id, chat.ContinueWithoutContext, nil)
	require.NoError(t, err)
	assert.Equal(t, chat.StateCompleted, done.State)
}

func TestChatService_OtherOwnerCannotUseSession(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()
	session, err := h.chat.CreateSession(h.ctx, h.owner, &dto.CreateSessionRequest{WorkspaceId: ws.Id})
	require.NoError(t, err)
	stranger := uuid.New()

	assert.True(t, errors.Is(h.chat.Authorize(h.ctx, stranger, session.Id), apperror.ErrSessionNotFound))

	_, err = h.chat.SendMessage(h.ctx, stranger, session.Id, "hello", nil)
	assert.True(t, errors.Is(err, apperror.ErrSessionNotFound))
	_, err = h.chat.StartTurn(h.ctx, stranger, session.Id, "hello")
	assert.True(t, errors.Is(err, apperror.ErrSessionNotFound))
	_, err = h.chat.ResumeTurn(h.ctx, stranger, session.Id, uuid.New(), chat.ContinueWithoutContext)
	assert.True(t, errors.Is(err, apperror.ErrSessionNotFound))

	_, err = h.chat.GetMessages(h.ctx, stranger, session.Id)
	assert.True(t, errors.Is(err, apperror.ErrSessionNotFound))

	_, err = h.chat.CreateSession(h.ctx, stranger, &dto.CreateSessionRequest{WorkspaceId: ws.Id})
	assert.True(t, errors.Is(err, apperror.ErrWorkspaceNotFound))

	_, err = h.chat.CurrentTurn(h.ctx, h.owner, session.Id)
	assert.True(t, errors.Is(err, apperror.ErrTurnNotFound))
}
