package contract

import (
	"context"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type DocumentRepository interface {
	Create(ctx context.Context, document *entity.Document) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	FindAllByWorkspace(ctx context.Context, workspaceId uuid.UUID) ([]*entity.Document, error)
	FindByStatuses(ctx context.Context, statuses []entity.ProcessingStatus, limit int) ([]*entity.Document, error)
	// TransitionStatus is a compare-and-set on the current status. It returns the new
	// StatusVersion, or ok=false when the document is no longer in `from`.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to entity.ProcessingStatus, message *string) (int64, bool, error)
	UpdateArtifacts(ctx context.Context, id uuid.UUID, artifacts entity.DocumentArtifacts) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error
}
