package mapper

import (
	"encoding/json"
	"time"

	"docrag-be/internal/entity"
	"docrag-be/internal/model"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Session Mappers

func (m *ChatMapper) ChatSessionToEntity(s *model.ChatSession) *entity.ChatSession {
	if s == nil {
		return nil
	}

	var updatedAt *time.Time
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		updatedAt = &t
	}

	return &entity.ChatSession{
		Id:          s.Id,
		WorkspaceId: s.WorkspaceId,
		OwnerId:     s.OwnerId,
		Title:       s.Title,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   updatedAt,
	}
}

func (m *ChatMapper) ChatSessionToModel(s *entity.ChatSession) *model.ChatSession {
	if s == nil {
		return nil
	}

	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}

	return &model.ChatSession{
		Id:          s.Id,
		WorkspaceId: s.WorkspaceId,
		OwnerId:     s.OwnerId,
		Title:       s.Title,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   updatedAt,
	}
}

// Message Mappers

func (m *ChatMapper) ChatMessageToEntity(msg *model.ChatMessage) (*entity.ChatMessage, error) {
	if msg == nil {
		return nil, nil
	}

	var retrieval *entity.RetrievalResult
	if len(msg.Retrieval) > 0 && string(msg.Retrieval) != "null" {
		retrieval = &entity.RetrievalResult{}
		if err := json.Unmarshal(msg.Retrieval, retrieval); err != nil {
			return nil, err
		}
	}

	var updatedAt *time.Time
	if !msg.UpdatedAt.IsZero() {
		t := msg.UpdatedAt
		updatedAt = &t
	}

	return &entity.ChatMessage{
		Id:            msg.Id,
		ChatSessionId: msg.ChatSessionId,
		TurnId:        msg.TurnId,
		Role:          msg.Role,
		Content:       msg.Content,
		Status:        entity.MessageStatus(msg.Status),
		Retrieval:     retrieval,
		CreatedAt:     msg.CreatedAt,
		UpdatedAt:     updatedAt,
	}, nil
}

func (m *ChatMapper) ChatMessageToModel(msg *entity.ChatMessage) (*model.ChatMessage, error) {
	if msg == nil {
		return nil, nil
	}

	var retrieval []byte
	if msg.Retrieval != nil {
		raw, err := json.Marshal(msg.Retrieval)
		if err != nil {
			return nil, err
		}
		retrieval = raw
	}

	var updatedAt time.Time
	if msg.UpdatedAt != nil {
		updatedAt = *msg.UpdatedAt
	}

	return &model.ChatMessage{
		Id:            msg.Id,
		ChatSessionId: msg.ChatSessionId,
		TurnId:        msg.TurnId,
		Role:          msg.Role,
		Content:       msg.Content,
		Status:        string(msg.Status),
		Retrieval:     retrieval,
		CreatedAt:     msg.CreatedAt,
		UpdatedAt:     updatedAt,
	}, nil
}
