package contract

import (
	"context"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type WorkspaceRepository interface {
	Create(ctx context.Context, workspace *entity.Workspace) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Workspace, error)
	FindAllByOwner(ctx context.Context, ownerId uuid.UUID) ([]*entity.Workspace, error)
	// UpdateRagConfig applies only while the workspace is still provisioning. Returns false otherwise.
	UpdateRagConfig(ctx context.Context, id uuid.UUID, cfg entity.RagConfig) (bool, error)
	// TransitionStatus moves the workspace to `to` if its current status is one of `from`,
	// bumping StatusVersion. Returns the new version and whether the row matched.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []entity.ProvisioningStatus, to entity.ProvisioningStatus, message *string) (int64, bool, error)
	// MarkReady records the resolved embedding dimension and moves the workspace from
	// provisioning to ready, but only while its RagConfig still equals expected.
	MarkReady(ctx context.Context, id uuid.UUID, expected entity.RagConfig, dimension int) (int64, bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
