package pipeline

import (
	"context"
	"time"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
)

var inFlightStatuses = []entity.ProcessingStatus{
	entity.StatusPending,
	entity.StatusParsing,
	entity.StatusChunking,
	entity.StatusEmbedding,
	entity.StatusIndexing,
}

func (p *Pipeline) recoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.RecoveryInterval)
	defer ticker.Stop()

	for {
		if n, err := p.Recover(ctx); err != nil && ctx.Err() == nil {
			p.log.Error("Pipeline", "Recovery sweep failed", map[string]interface{}{
				"error": err.Error(),
			})
		} else if n > 0 {
			p.log.Info("Pipeline", "Recovery sweep resumed documents", map[string]interface{}{
				"count": n,
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Recover re-dispatches work that was lost: jobs whose message never arrived
// or whose worker died, and documents left in a stage with no live job. It
// returns how many documents were dispatched again.
func (p *Pipeline) Recover(ctx context.Context) (int, error) {
	current := time.Now()
	staleBefore := current.Add(-p.cfg.StaleQueuedAfter)
	recovered := 0

	uow := p.repos.NewUnitOfWork(ctx)
	jobs := uow.PipelineJobRepository()
	docs := uow.DocumentRepository()

	stale, err := jobs.FindStale(ctx, staleBefore, current, p.cfg.RecoveryBatch)
	if err != nil {
		return 0, err
	}
	seen := make(map[uuid.UUID]struct{}, len(stale))
	for _, job := range stale {
		seen[job.DocumentId] = struct{}{}

		doc, err := docs.FindByID(ctx, job.DocumentId)
		if err != nil {
			return recovered, err
		}
		if doc == nil {
			if err := jobs.Delete(ctx, job.DocumentId); err != nil {
				return recovered, err
			}
			continue
		}
		if p.gate.Closed(doc.WorkspaceId, doc.Id) {
			continue
		}

		switch {
		case doc.Status.IsStage():
			if err := p.redispatch(ctx, doc); err != nil {
				return recovered, err
			}
			recovered++
		case doc.Status == entity.StatusPending:
			if err := p.Submit(ctx, doc.Id); err == nil {
				recovered++
			}
		case doc.Status == entity.StatusReady:
			if err := jobs.Finish(ctx, doc.Id, job.Stage, entity.JobStateDone, nil); err != nil {
				return recovered, err
			}
		case doc.Status == entity.StatusError:
			if err := jobs.Finish(ctx, doc.Id, job.Stage, entity.JobStateFailed, doc.ErrorMessage); err != nil {
				return recovered, err
			}
		}
	}

	waiting, err := docs.FindByStatuses(ctx, inFlightStatuses, p.cfg.RecoveryBatch)
	if err != nil {
		return recovered, err
	}
	for _, doc := range waiting {
		if _, ok := seen[doc.Id]; ok {
			continue
		}
		if lastChange(doc).After(staleBefore) || p.gate.Closed(doc.WorkspaceId, doc.Id) {
			continue
		}

		if doc.Status == entity.StatusPending {
			if err := p.Submit(ctx, doc.Id); err == nil {
				recovered++
			}
			continue
		}

		job, err := jobs.FindByDocument(ctx, doc.Id)
		if err != nil {
			return recovered, err
		}
		if job != nil && job.Stage == doc.Status && (job.State == entity.JobStateQueued || job.State == entity.JobStateRunning) {
			continue
		}
		if err := p.redispatch(ctx, doc); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (p *Pipeline) redispatch(ctx context.Context, doc *entity.Document) error {
	uow := p.repos.NewUnitOfWork(ctx)
	if err := uow.PipelineJobRepository().Enqueue(ctx, doc.Id, doc.WorkspaceId, doc.Status); err != nil {
		return err
	}
	p.publishJob(doc.WorkspaceId, doc.Id, doc.Status)
	return nil
}

func lastChange(doc *entity.Document) time.Time {
	if doc.UpdatedAt != nil {
		return *doc.UpdatedAt
	}
	return doc.CreatedAt
}
