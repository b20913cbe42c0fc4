package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	JobStateQueued  JobState = "queued"
	JobStateRunning JobState = "running"
	JobStateDone    JobState = "done"
	JobStateFailed  JobState = "failed"
)

// PipelineJob is the work-item row for a document: which stage it is in and who holds it.
type PipelineJob struct {
	DocumentId     uuid.UUID
	WorkspaceId    uuid.UUID
	Stage          ProcessingStatus
	State          JobState
	Attempts       int
	LastError      *string
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
