package contract

import (
	"context"
	"time"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type PipelineJobRepository interface {
	// Enqueue records that the document's next unit of work is `stage`, resetting attempts.
	Enqueue(ctx context.Context, documentId, workspaceId uuid.UUID, stage entity.ProcessingStatus) error
	// Claim takes the lease on a queued (or lease-expired) job for `stage`. A false result
	// means another worker owns it or the job moved on, and the delivery should be dropped.
	Claim(ctx context.Context, documentId uuid.UUID, stage entity.ProcessingStatus, lease time.Duration) (bool, error)
	RecordAttempt(ctx context.Context, documentId uuid.UUID, stage entity.ProcessingStatus, errMessage string) error
	Finish(ctx context.Context, documentId uuid.UUID, stage entity.ProcessingStatus, state entity.JobState, errMessage *string) error
	FindByDocument(ctx context.Context, documentId uuid.UUID) (*entity.PipelineJob, error)
	// FindStale returns queued jobs untouched since queuedBefore and running jobs whose lease expired before now.
	FindStale(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*entity.PipelineJob, error)
	Delete(ctx context.Context, documentId uuid.UUID) error
	DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error
}
