package memory

import (
	"context"
	"sort"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type DocumentRepository struct {
	store *Store
}

func (r *DocumentRepository) Create(ctx context.Context, document *entity.Document) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	document.Id = newID(document.Id)
	document.CreatedAt = r.store.now()
	r.store.documents[document.Id] = cloneDocument(document)
	r.store.track(document.Id)
	return nil
}

func (r *DocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	d, ok := r.store.documents[id]
	if !ok {
		return nil, nil
	}
	return cloneDocument(d), nil
}

func (r *DocumentRepository) FindAllByWorkspace(ctx context.Context, workspaceId uuid.UUID) ([]*entity.Document, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := []*entity.Document{}
	for _, d := range r.store.documents {
		if d.WorkspaceId == workspaceId {
			out = append(out, cloneDocument(d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.store.order[out[i].Id] > r.store.order[out[j].Id]
	})
	return out, nil
}

func (r *DocumentRepository) FindByStatuses(ctx context.Context, statuses []entity.ProcessingStatus, limit int) ([]*entity.Document, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	wanted := make(map[entity.ProcessingStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	out := []*entity.Document{}
	for _, d := range r.store.documents {
		if wanted[d.Status] {
			out = append(out, cloneDocument(d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.store.order[out[i].Id] < r.store.order[out[j].Id]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *DocumentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to entity.ProcessingStatus, message *string) (int64, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	d, ok := r.store.documents[id]
	if !ok || d.Status != from {
		return 0, false, nil
	}
	d.Status = to
	d.ErrorMessage = message
	d.StatusVersion++
	d.UpdatedAt = timePtr(r.store.now())
	return d.StatusVersion, true, nil
}

func (r *DocumentRepository) UpdateArtifacts(ctx context.Context, id uuid.UUID, artifacts entity.DocumentArtifacts) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	d, ok := r.store.documents[id]
	if !ok {
		return nil
	}
	if artifacts.TextKey != nil {
		d.TextKey = *artifacts.TextKey
	}
	if artifacts.ChunkCount != nil {
		d.ChunkCount = *artifacts.ChunkCount
	}
	if artifacts.VectorCount != nil {
		d.VectorCount = *artifacts.VectorCount
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	delete(r.store.documents, id)
	return nil
}

func (r *DocumentRepository) DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for id, d := range r.store.documents {
		if d.WorkspaceId == workspaceId {
			delete(r.store.documents, id)
		}
	}
	return nil
}
