package memory

import (
	"context"
	"sort"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type ChunkRepository struct {
	store *Store
}

func (r *ChunkRepository) sorted(chunks []*entity.Chunk) []*entity.Chunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Ordinal < chunks[j].Ordinal
	})
	return chunks
}

func (r *ChunkRepository) ReplaceForDocument(ctx context.Context, documentId uuid.UUID, chunks []*entity.Chunk) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for id, c := range r.store.chunks {
		if c.DocumentId == documentId {
			delete(r.store.chunks, id)
		}
	}
	for _, c := range chunks {
		c.Id = newID(c.Id)
		c.CreatedAt = r.store.now()
		r.store.chunks[c.Id] = cloneChunk(c)
		r.store.track(c.Id)
	}
	return nil
}

func (r *ChunkRepository) FindByDocument(ctx context.Context, documentId uuid.UUID) ([]*entity.Chunk, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := []*entity.Chunk{}
	for _, c := range r.store.chunks {
		if c.DocumentId == documentId {
			out = append(out, cloneChunk(c))
		}
	}
	return r.sorted(out), nil
}

func (r *ChunkRepository) FindPendingEmbedding(ctx context.Context, documentId uuid.UUID) ([]*entity.Chunk, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := []*entity.Chunk{}
	for _, c := range r.store.chunks {
		if c.DocumentId == documentId && !c.HasEmbedding() {
			out = append(out, cloneChunk(c))
		}
	}
	return r.sorted(out), nil
}

func (r *ChunkRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Chunk, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*entity.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.store.chunks[id]; ok {
			out = append(out, cloneChunk(c))
		}
	}
	return out, nil
}

func (r *ChunkRepository) UpdateEmbeddings(ctx context.Context, embeddings []entity.ChunkEmbedding) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, e := range embeddings {
		if c, ok := r.store.chunks[e.ChunkId]; ok {
			c.Embedding = append([]float32(nil), e.Embedding...)
		}
	}
	return nil
}

func (r *ChunkRepository) CountByDocument(ctx context.Context, documentId uuid.UUID) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var count int64
	for _, c := range r.store.chunks {
		if c.DocumentId == documentId {
			count++
		}
	}
	return count, nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentId uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for id, c := range r.store.chunks {
		if c.DocumentId == documentId {
			delete(r.store.chunks, id)
		}
	}
	return nil
}

func (r *ChunkRepository) DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for id, c := range r.store.chunks {
		if c.WorkspaceId == workspaceId {
			delete(r.store.chunks, id)
		}
	}
	return nil
}
