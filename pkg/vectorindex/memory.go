package vectorindex

import (
	"context"
	"sort"
	"sync"

	"docrag-be/pkg/apperror"

	"github.com/google/uuid"
)

type memoryEntry struct {
	vector Vector
	seq    int64
}

// MemoryIndex is a brute-force cosine index kept in process memory.
type MemoryIndex struct {
	mu         sync.RWMutex
	seq        int64
	workspaces map[uuid.UUID]map[uuid.UUID]*memoryEntry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{workspaces: make(map[uuid.UUID]map[uuid.UUID]*memoryEntry)}
}

func (m *MemoryIndex) ReplaceDocument(ctx context.Context, workspaceId, documentId uuid.UUID, vectors []Vector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range vectors {
		if v.WorkspaceId != workspaceId || v.DocumentId != documentId {
			return apperror.ErrTenantIsolation
		}
	}

	bucket, ok := m.workspaces[workspaceId]
	if !ok {
		bucket = make(map[uuid.UUID]*memoryEntry)
		m.workspaces[workspaceId] = bucket
	}
	for id, e := range bucket {
		if e.vector.DocumentId == documentId {
			delete(bucket, id)
		}
	}
	for _, v := range vectors {
		m.seq++
		cp := v
		cp.Values = append([]float32(nil), v.Values...)
		bucket[v.ChunkId] = &memoryEntry{vector: cp, seq: m.seq}
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, workspaceId uuid.UUID, query []float32, limit int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.workspaces[workspaceId]
	hits := make([]Hit, 0, len(bucket))
	for _, e := range bucket {
		hits = append(hits, Hit{
			ChunkId:     e.vector.ChunkId,
			DocumentId:  e.vector.DocumentId,
			WorkspaceId: e.vector.WorkspaceId,
			Ordinal:     e.vector.Ordinal,
			Seq:         e.seq,
			Similarity:  cosine(e.vector.Values, query),
			Values:      e.vector.Values,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Seq < hits[j].Seq
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) DeleteByDocument(ctx context.Context, workspaceId, documentId uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, e := range m.workspaces[workspaceId] {
		if e.vector.DocumentId == documentId {
			delete(m.workspaces[workspaceId], id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryIndex) DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := int64(len(m.workspaces[workspaceId]))
	delete(m.workspaces, workspaceId)
	return removed, nil
}

func (m *MemoryIndex) Count(ctx context.Context, workspaceId uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.workspaces[workspaceId])), nil
}
