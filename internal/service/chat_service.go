package service

import (
	"context"
	"strings"

	"docrag-be/internal/dto"
	"docrag-be/internal/entity"
	"docrag-be/internal/pkg/logger"
	"docrag-be/internal/repository/unitofwork"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/rag/chat"

	"github.com/google/uuid"
)

const defaultSessionTitle = "New chat"

type IChatService interface {
	CreateSession(ctx context.Context, ownerId uuid.UUID, req *dto.CreateSessionRequest) (*dto.SessionResponse, error)
	GetSessions(ctx context.Context, ownerId, workspaceId uuid.UUID) ([]*dto.SessionResponse, error)
	GetMessages(ctx context.Context, ownerId, sessionId uuid.UUID) ([]*dto.MessageResponse, error)
	DeleteSession(ctx context.Context, ownerId, sessionId uuid.UUID) error

	// Authorize checks that the session exists and belongs to ownerId.
	Authorize(ctx context.Context, ownerId, sessionId uuid.UUID) error
	SendMessage(ctx context.Context, ownerId, sessionId uuid.UUID, content string, sink chat.Sink) (*chat.TurnSnapshot, error)
	Continue(ctx context.Context, ownerId, sessionId, turnId uuid.UUID, choice chat.Continuation, sink chat.Sink) (*chat.TurnSnapshot, error)
	// StartTurn and ResumeTurn claim a turn without running it, so a rejected
	// turn is reported before the caller commits to streaming.
	StartTurn(ctx context.Context, ownerId, sessionId uuid.UUID, content string) (*chat.Run, error)
	ResumeTurn(ctx context.Context, ownerId, sessionId, turnId uuid.UUID, choice chat.Continuation) (*chat.Run, error)
	Cancel(ctx context.Context, ownerId, sessionId, turnId uuid.UUID) error
	CurrentTurn(ctx context.Context, ownerId, sessionId uuid.UUID) (*chat.TurnSnapshot, error)
}

type chatService struct {
	uowFactory   unitofwork.RepositoryFactory
	orchestrator *chat.Orchestrator
	log          logger.ILogger
}

func NewChatService(uowFactory unitofwork.RepositoryFactory, orchestrator *chat.Orchestrator, log logger.ILogger) IChatService {
	return &chatService{
		uowFactory:   uowFactory,
		orchestrator: orchestrator,
		log:          log,
	}
}

func (s *chatService) CreateSession(ctx context.Context, ownerId uuid.UUID, req *dto.CreateSessionRequest) (*dto.SessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	workspace, err := ownedWorkspace(ctx, uow, ownerId, req.WorkspaceId)
	if err != nil {
		return nil, err
	}
	if workspace.Status == entity.ProvisioningStatusDeleting {
		return nil, apperror.ErrWorkspaceDeleting
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultSessionTitle
	}
	session := &entity.ChatSession{
		Id:          uuid.New(),
		WorkspaceId: workspace.Id,
		OwnerId:     ownerId,
		Title:       title,
	}
	if err := uow.ChatSessionRepository().Create(ctx, session); err != nil {
		return nil, err
	}
	return toSessionResponse(session), nil
}

func (s *chatService) GetSessions(ctx context.Context, ownerId, workspaceId uuid.UUID) ([]*dto.SessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := ownedWorkspace(ctx, uow, ownerId, workspaceId); err != nil {
		return nil, err
	}
	sessions, err := uow.ChatSessionRepository().FindAllByWorkspace(ctx, workspaceId, ownerId)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		res = append(res, toSessionResponse(session))
	}
	return res, nil
}

func (s *chatService) GetMessages(ctx context.Context, ownerId, sessionId uuid.UUID) ([]*dto.MessageResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := ownedSession(ctx, uow, ownerId, sessionId); err != nil {
		return nil, err
	}
	messages, err := uow.ChatMessageRepository().FindBySession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.MessageResponse, 0, len(messages))
	for _, m := range messages {
		res = append(res, &dto.MessageResponse{
			Id:        m.Id,
			TurnId:    m.TurnId,
			Role:      m.Role,
			Content:   m.Content,
			Status:    string(m.Status),
			Retrieval: m.Retrieval,
			CreatedAt: m.CreatedAt,
		})
	}
	return res, nil
}

// DeleteSession stops the running turn, if any, and removes every message.
func (s *chatService) DeleteSession(ctx context.Context, ownerId, sessionId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := ownedSession(ctx, uow, ownerId, sessionId); err != nil {
		return err
	}
	s.orchestrator.Forget(sessionId)

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteBySession(ctx, sessionId); err != nil {
		return err
	}
	if err := uow.ChatSessionRepository().Delete(ctx, sessionId); err != nil {
		return err
	}
	return uow.Commit()
}

func (s *chatService) Authorize(ctx context.Context, ownerId, sessionId uuid.UUID) error {
	_, err := ownedSession(ctx, s.uowFactory.NewUnitOfWork(ctx), ownerId, sessionId)
	return err
}

func (s *chatService) SendMessage(ctx context.Context, ownerId, sessionId uuid.UUID, content string, sink chat.Sink) (*chat.TurnSnapshot, error) {
	if err := s.Authorize(ctx, ownerId, sessionId); err != nil {
		return nil, err
	}
	return s.orchestrator.SendMessage(ctx, sessionId, content, sink)
}

func (s *chatService) StartTurn(ctx context.Context, ownerId, sessionId uuid.UUID, content string) (*chat.Run, error) {
	if err := s.Authorize(ctx, ownerId, sessionId); err != nil {
		return nil, err
	}
	return s.orchestrator.Start(ctx, sessionId, content)
}

func (s *chatService) ResumeTurn(ctx context.Context, ownerId, sessionId, turnId uuid.UUID, choice chat.Continuation) (*chat.Run, error) {
	if err := s.Authorize(ctx, ownerId, sessionId); err != nil {
		return nil, err
	}
	return s.orchestrator.Resume(sessionId, turnId, choice)
}

func (s *chatService) Continue(ctx context.Context, ownerId, sessionId, turnId uuid.UUID, choice chat.Continuation, sink chat.Sink) (*chat.TurnSnapshot, error) {
	if err := s.Authorize(ctx, ownerId, sessionId); err != nil {
		return nil, err
	}
	return s.orchestrator.Continue(ctx, sessionId, turnId, choice, sink)
}

func (s *chatService) Cancel(ctx context.Context, ownerId, sessionId, turnId uuid.UUID) error {
	if err := s.Authorize(ctx, ownerId, sessionId); err != nil {
		return err
	}
	return s.orchestrator.Cancel(sessionId, turnId)
}

func (s *chatService) CurrentTurn(ctx context.Context, ownerId, sessionId uuid.UUID) (*chat.TurnSnapshot, error) {
	if err := s.Authorize(ctx, ownerId, sessionId); err != nil {
		return nil, err
	}
	snap, ok := s.orchestrator.Turn(sessionId)
	if !ok {
		return nil, apperror.ErrTurnNotFound
	}
	return snap, nil
}

func ownedSession(ctx context.Context, uow unitofwork.UnitOfWork, ownerId, sessionId uuid.UUID) (*entity.ChatSession, error) {
	session, err := uow.ChatSessionRepository().FindByID(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session == nil || session.OwnerId != ownerId {
		return nil, apperror.ErrSessionNotFound
	}
	return session, nil
}

func toSessionResponse(s *entity.ChatSession) *dto.SessionResponse {
	return &dto.SessionResponse{
		Id:          s.Id,
		WorkspaceId: s.WorkspaceId,
		Title:       s.Title,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
