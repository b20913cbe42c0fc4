package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"docrag-be/internal/entity"
	"docrag-be/pkg/events"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type stageRunner func(ctx context.Context, doc *entity.Document, ws *entity.Workspace) (events.StageEvent, error)

// handleJob runs one stage for one document and reports the outcome as a
// stage event. It never changes the document status itself.
func (p *Pipeline) handleJob(ctx context.Context, stage entity.ProcessingStatus, payload []byte) {
	var job events.StageJob
	if err := json.Unmarshal(payload, &job); err != nil {
		p.log.Error("Pipeline", "Dropping malformed stage job", map[string]interface{}{
			"stage": stage,
			"error": err.Error(),
		})
		return
	}

	wctx, release, err := p.gate.Enter(ctx, job.WorkspaceId, job.DocumentId)
	if err != nil {
		p.log.Debug("Pipeline", "Skipping job for deleted document", map[string]interface{}{
			"document_id": job.DocumentId,
			"stage":       stage,
		})
		return
	}
	defer release()

	uow := p.repos.NewUnitOfWork(wctx)
	claimed, err := uow.PipelineJobRepository().Claim(wctx, job.DocumentId, stage, p.cfg.LeaseDuration)
	if err != nil {
		p.log.Error("Pipeline", "Failed to claim job", map[string]interface{}{
			"document_id": job.DocumentId,
			"stage":       stage,
			"error":       err.Error(),
		})
		return
	}
	if !claimed {
		p.log.Debug("Pipeline", "Job already claimed", map[string]interface{}{
			"document_id": job.DocumentId,
			"stage":       stage,
		})
		return
	}

	doc, err := uow.DocumentRepository().FindByID(wctx, job.DocumentId)
	if err != nil || doc == nil || doc.Status != stage {
		p.log.Warn("Pipeline", "Document not in claimed stage", map[string]interface{}{
			"document_id": job.DocumentId,
			"stage":       stage,
		})
		return
	}
	ws, err := uow.WorkspaceRepository().FindByID(wctx, doc.WorkspaceId)
	if err != nil || ws == nil {
		return
	}

	sctx, span := p.tracer.Start(wctx, stageLabel(stage), trace.WithAttributes(
		attribute.String("document.id", doc.Id.String()),
		attribute.String("workspace.id", ws.Id.String()),
	))
	run := p.stages[stage]
	ev, err := p.runWithRetry(sctx, stage, doc.Id, func(actx context.Context) (events.StageEvent, error) {
		return run(actx, doc, ws)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	if wctx.Err() != nil {
		p.abandon(ctx, wctx, doc, stage)
		return
	}

	if err != nil {
		ev = events.StageEvent{Type: events.DocumentFailed, Error: err.Error()}
	}
	ev.DocumentId = doc.Id
	ev.WorkspaceId = doc.WorkspaceId
	ev.Stage = string(stage)
	ev.OccurredAt = now()
	p.publishEvent(ev)
}

// abandon handles a stage interrupted by shutdown or deletion. Deleted
// documents are left alone; otherwise the job is queued again so the next
// recovery sweep picks it up without waiting for the lease.
func (p *Pipeline) abandon(parent, wctx context.Context, doc *entity.Document, stage entity.ProcessingStatus) {
	if errors.Is(context.Cause(wctx), ErrDeleted) {
		p.log.Info("Pipeline", "Stage cancelled by deletion", map[string]interface{}{
			"document_id": doc.Id,
			"stage":       stage,
		})
		return
	}

	rctx := context.WithoutCancel(parent)
	uow := p.repos.NewUnitOfWork(rctx)
	if err := uow.PipelineJobRepository().Enqueue(rctx, doc.Id, doc.WorkspaceId, stage); err != nil {
		p.log.Error("Pipeline", "Failed to requeue interrupted job", map[string]interface{}{
			"document_id": doc.Id,
			"stage":       stage,
			"error":       err.Error(),
		})
	}
}
