package memory

import (
	"sync"
	"time"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

// Store is a process-local Document Store used by DB_DRIVER=memory and by tests.
// Writes are applied immediately; Rollback does not undo them.
type Store struct {
	mu sync.RWMutex

	workspaces map[uuid.UUID]*entity.Workspace
	documents  map[uuid.UUID]*entity.Document
	chunks     map[uuid.UUID]*entity.Chunk
	sessions   map[uuid.UUID]*entity.ChatSession
	messages   map[uuid.UUID]*entity.ChatMessage
	jobs       map[uuid.UUID]*entity.PipelineJob

	// insertion order, used where timestamps can collide
	seq    int64
	order  map[uuid.UUID]int64
	nowFor func() time.Time
}

func NewStore() *Store {
	return &Store{
		workspaces: make(map[uuid.UUID]*entity.Workspace),
		documents:  make(map[uuid.UUID]*entity.Document),
		chunks:     make(map[uuid.UUID]*entity.Chunk),
		sessions:   make(map[uuid.UUID]*entity.ChatSession),
		messages:   make(map[uuid.UUID]*entity.ChatMessage),
		jobs:       make(map[uuid.UUID]*entity.PipelineJob),
		order:      make(map[uuid.UUID]int64),
		nowFor:     time.Now,
	}
}

func (s *Store) now() time.Time {
	return s.nowFor()
}

// track must be called with mu held.
func (s *Store) track(id uuid.UUID) {
	s.seq++
	s.order[id] = s.seq
}

func newID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func cloneWorkspace(w *entity.Workspace) *entity.Workspace {
	c := *w
	return &c
}

func cloneDocument(d *entity.Document) *entity.Document {
	c := *d
	return &c
}

func cloneChunk(ch *entity.Chunk) *entity.Chunk {
	c := *ch
	if ch.Embedding != nil {
		c.Embedding = append([]float32(nil), ch.Embedding...)
	}
	return &c
}

func cloneSession(s *entity.ChatSession) *entity.ChatSession {
	c := *s
	return &c
}

func cloneMessage(m *entity.ChatMessage) *entity.ChatMessage {
	c := *m
	if m.Retrieval != nil {
		r := *m.Retrieval
		r.Passages = append([]entity.RetrievedPassage(nil), m.Retrieval.Passages...)
		c.Retrieval = &r
	}
	return &c
}

func cloneJob(j *entity.PipelineJob) *entity.PipelineJob {
	c := *j
	return &c
}
