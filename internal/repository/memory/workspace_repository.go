package memory

import (
	"context"
	"sort"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type WorkspaceRepository struct {
	store *Store
}

func (r *WorkspaceRepository) Create(ctx context.Context, workspace *entity.Workspace) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workspace.Id = newID(workspace.Id)
	workspace.CreatedAt = r.store.now()
	r.store.workspaces[workspace.Id] = cloneWorkspace(workspace)
	r.store.track(workspace.Id)
	return nil
}

func (r *WorkspaceRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Workspace, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	w, ok := r.store.workspaces[id]
	if !ok {
		return nil, nil
	}
	return cloneWorkspace(w), nil
}

func (r *WorkspaceRepository) FindAllByOwner(ctx context.Context, ownerId uuid.UUID) ([]*entity.Workspace, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := []*entity.Workspace{}
	for _, w := range r.store.workspaces {
		if w.OwnerId == ownerId {
			out = append(out, cloneWorkspace(w))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.store.order[out[i].Id] > r.store.order[out[j].Id]
	})
	return out, nil
}

func (r *WorkspaceRepository) UpdateRagConfig(ctx context.Context, id uuid.UUID, cfg entity.RagConfig) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	w, ok := r.store.workspaces[id]
	if !ok || w.Status != entity.ProvisioningStatusProvisioning {
		return false, nil
	}
	w.RagConfig = cfg
	w.UpdatedAt = timePtr(r.store.now())
	return true, nil
}

func (r *WorkspaceRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []entity.ProvisioningStatus, to entity.ProvisioningStatus, message *string) (int64, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	w, ok := r.store.workspaces[id]
	if !ok {
		return 0, false, nil
	}
	matched := false
	for _, s := range from {
		if w.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return 0, false, nil
	}
	w.Status = to
	w.StatusMessage = message
	w.StatusVersion++
	w.UpdatedAt = timePtr(r.store.now())
	return w.StatusVersion, true, nil
}

func (r *WorkspaceRepository) MarkReady(ctx context.Context, id uuid.UUID, expected entity.RagConfig, dimension int) (int64, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	w, ok := r.store.workspaces[id]
	if !ok || w.Status != entity.ProvisioningStatusProvisioning || w.RagConfig != expected {
		return 0, false, nil
	}
	w.RagConfig.EmbeddingDimension = dimension
	w.Status = entity.ProvisioningStatusReady
	w.StatusMessage = nil
	w.StatusVersion++
	w.UpdatedAt = timePtr(r.store.now())
	return w.StatusVersion, true, nil
}

func (r *WorkspaceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	delete(r.store.workspaces, id)
	return nil
}
