package memory

import (
	"context"
	"sort"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type ChatSessionRepository struct {
	store *Store
}

func (r *ChatSessionRepository) Create(ctx context.Context, session *entity.ChatSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	session.Id = newID(session.Id)
	session.CreatedAt = r.store.now()
	r.store.sessions[session.Id] = cloneSession(session)
	r.store.track(session.Id)
	return nil
}

func (r *ChatSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	s, ok := r.store.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

func (r *ChatSessionRepository) FindAllByWorkspace(ctx context.Context, workspaceId, ownerId uuid.UUID) ([]*entity.ChatSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := []*entity.ChatSession{}
	for _, s := range r.store.sessions {
		if s.WorkspaceId == workspaceId && s.OwnerId == ownerId {
			out = append(out, cloneSession(s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.store.order[out[i].Id] > r.store.order[out[j].Id]
	})
	return out, nil
}

func (r *ChatSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	delete(r.store.sessions, id)
	return nil
}

func (r *ChatSessionRepository) DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for id, s := range r.store.sessions {
		if s.WorkspaceId == workspaceId {
			delete(r.store.sessions, id)
		}
	}
	return nil
}

type ChatMessageRepository struct {
	store *Store
}

func (r *ChatMessageRepository) Create(ctx context.Context, message *entity.ChatMessage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	message.Id = newID(message.Id)
	message.CreatedAt = r.store.now()
	r.store.messages[message.Id] = cloneMessage(message)
	r.store.track(message.Id)
	return nil
}

func (r *ChatMessageRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string, status entity.MessageStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if m, ok := r.store.messages[id]; ok {
		m.Content = content
		m.Status = status
		m.UpdatedAt = timePtr(r.store.now())
	}
	return nil
}

// bySession must be called with mu held.
func (r *ChatMessageRepository) bySession(sessionId uuid.UUID) []*entity.ChatMessage {
	out := []*entity.ChatMessage{}
	for _, m := range r.store.messages {
		if m.ChatSessionId == sessionId {
			out = append(out, cloneMessage(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.store.order[out[i].Id] < r.store.order[out[j].Id]
	})
	return out
}

func (r *ChatMessageRepository) FindBySession(ctx context.Context, sessionId uuid.UUID) ([]*entity.ChatMessage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.bySession(sessionId), nil
}

func (r *ChatMessageRepository) FindRecentBySession(ctx context.Context, sessionId uuid.UUID, limit int) ([]*entity.ChatMessage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	all := r.bySession(sessionId)
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (r *ChatMessageRepository) DeleteBySession(ctx context.Context, sessionId uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for id, m := range r.store.messages {
		if m.ChatSessionId == sessionId {
			delete(r.store.messages, id)
		}
	}
	return nil
}

func (r *ChatMessageRepository) DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for id, m := range r.store.messages {
		if s, ok := r.store.sessions[m.ChatSessionId]; ok && s.WorkspaceId == workspaceId {
			delete(r.store.messages, id)
		}
	}
	return nil
}
