package memory

import (
	"context"
	"sort"
	"time"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

type PipelineJobRepository struct {
	store *Store
}

func (r *PipelineJobRepository) Enqueue(ctx context.Context, documentId, workspaceId uuid.UUID, stage entity.ProcessingStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := r.store.now()
	job, ok := r.store.jobs[documentId]
	if !ok {
		job = &entity.PipelineJob{DocumentId: documentId, CreatedAt: now}
		r.store.jobs[documentId] = job
	}
	job.WorkspaceId = workspaceId
	job.Stage = stage
	job.State = entity.JobStateQueued
	job.Attempts = 0
	job.LastError = nil
	job.LeaseExpiresAt = nil
	job.UpdatedAt = now
	return nil
}

func (r *PipelineJobRepository) Claim(ctx context.Context, documentId uuid.UUID, stage entity.ProcessingStatus, lease time.Duration) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := r.store.now()
	job, ok := r.store.jobs[documentId]
	if !ok || job.Stage != stage {
		return false, nil
	}
	expired := job.State == entity.JobStateRunning && job.LeaseExpiresAt != nil && job.LeaseExpiresAt.Before(now)
	if job.State != entity.JobStateQueued && !expired {
		return false, nil
	}
	job.State = entity.JobStateRunning
	job.LeaseExpiresAt = timePtr(now.Add(lease))
	job.UpdatedAt = now
	return true, nil
}

func (r *PipelineJobRepository) RecordAttempt(ctx context.Context, documentId uuid.UUID, stage entity.ProcessingStatus, errMessage string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if job, ok := r.store.jobs[documentId]; ok && job.Stage == stage {
		job.Attempts++
		job.LastError = &errMessage
		job.UpdatedAt = r.store.now()
	}
	return nil
}

func (r *PipelineJobRepository) Finish(ctx context.Context, documentId uuid.UUID, stage entity.ProcessingStatus, state entity.JobState, errMessage *string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if job, ok := r.store.jobs[documentId]; ok && job.Stage == stage {
		job.State = state
		job.LastError = errMessage
		job.LeaseExpiresAt = nil
		job.UpdatedAt = r.store.now()
	}
	return nil
}

func (r *PipelineJobRepository) FindByDocument(ctx context.Context, documentId uuid.UUID) (*entity.PipelineJob, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	job, ok := r.store.jobs[documentId]
	if !ok {
		return nil, nil
	}
	return cloneJob(job), nil
}

func (r *PipelineJobRepository) FindStale(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*entity.PipelineJob, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := []*entity.PipelineJob{}
	for _, job := range r.store.jobs {
		staleQueued := job.State == entity.JobStateQueued && job.UpdatedAt.Before(queuedBefore)
		leaseExpired := job.State == entity.JobStateRunning && job.LeaseExpiresAt != nil && job.LeaseExpiresAt.Before(now)
		if staleQueued || leaseExpired {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PipelineJobRepository) Delete(ctx context.Context, documentId uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	delete(r.store.jobs, documentId)
	return nil
}

func (r *PipelineJobRepository) DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for id, job := range r.store.jobs {
		if job.WorkspaceId == workspaceId {
			delete(r.store.jobs, id)
		}
	}
	return nil
}
