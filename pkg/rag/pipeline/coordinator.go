package pipeline

import (
	"context"
	"encoding/json"

	"docrag-be/internal/entity"
	"docrag-be/pkg/events"
)

// handleCompletion applies one stage outcome to the document row and hands
// the document to the next stage.
func (p *Pipeline) handleCompletion(ctx context.Context, payload []byte) {
	var ev events.StageEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		p.log.Error("Pipeline", "Dropping malformed stage event", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	p.notifier.Mirror(ctx, ev)

	if p.gate.Closed(ev.WorkspaceId, ev.DocumentId) {
		return
	}

	from := entity.ProcessingStatus(ev.Stage)
	if !from.IsStage() {
		p.log.Warn("Pipeline", "Stage event for unknown stage", map[string]interface{}{
			"document_id": ev.DocumentId,
			"stage":       ev.Stage,
		})
		return
	}

	var err error
	if ev.Type == events.DocumentFailed {
		err = p.fail(ctx, ev, from)
	} else {
		err = p.advance(ctx, ev, from)
	}
	if err != nil {
		// The job row keeps its lease; recovery re-runs the stage after it expires.
		p.log.Error("Pipeline", "Failed to apply stage event", map[string]interface{}{
			"document_id": ev.DocumentId,
			"event":       ev.Type,
			"error":       err.Error(),
		})
	}
}

func (p *Pipeline) advance(ctx context.Context, ev events.StageEvent, from entity.ProcessingStatus) error {
	next, ok := from.Next()
	if !ok {
		return nil
	}

	uow := p.repos.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	docs := uow.DocumentRepository()
	version, moved, err := docs.TransitionStatus(ctx, ev.DocumentId, from, next, nil)
	if err != nil {
		return err
	}
	if !moved {
		p.log.Debug("Pipeline", "Ignoring duplicate stage event", map[string]interface{}{
			"document_id": ev.DocumentId,
			"event":       ev.Type,
		})
		return nil
	}
	if err := docs.UpdateArtifacts(ctx, ev.DocumentId, artifactsOf(ev)); err != nil {
		return err
	}

	jobs := uow.PipelineJobRepository()
	if next == entity.StatusReady {
		err = jobs.Finish(ctx, ev.DocumentId, from, entity.JobStateDone, nil)
	} else {
		err = jobs.Enqueue(ctx, ev.DocumentId, ev.WorkspaceId, next)
	}
	if err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	p.notifier.Document(ctx, ev.WorkspaceId, ev.DocumentId, string(next), version, nil)
	if next == entity.StatusReady {
		p.log.Info("Pipeline", "Document ready", map[string]interface{}{
			"document_id":  ev.DocumentId,
			"workspace_id": ev.WorkspaceId,
			"vectors":      ev.VectorCount,
		})
		return nil
	}
	p.publishJob(ev.WorkspaceId, ev.DocumentId, next)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, ev events.StageEvent, from entity.ProcessingStatus) error {
	msg := ev.Error
	if msg == "" {
		msg = string(from) + " failed"
	}

	uow := p.repos.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	version, moved, err := uow.DocumentRepository().TransitionStatus(ctx, ev.DocumentId, from, entity.StatusError, &msg)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}
	if err := uow.PipelineJobRepository().Finish(ctx, ev.DocumentId, from, entity.JobStateFailed, &msg); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	p.notifier.Document(ctx, ev.WorkspaceId, ev.DocumentId, string(entity.StatusError), version, &msg)
	p.log.Warn("Pipeline", "Document failed", map[string]interface{}{
		"document_id": ev.DocumentId,
		"stage":       from,
		"error":       msg,
	})
	return nil
}

func artifactsOf(ev events.StageEvent) entity.DocumentArtifacts {
	var a entity.DocumentArtifacts
	switch ev.Type {
	case events.DocumentParsed:
		key := ev.TextKey
		a.TextKey = &key
	case events.DocumentChunked:
		n := ev.ChunkCount
		a.ChunkCount = &n
	case events.DocumentEmbedded, events.DocumentIndexed:
		n := ev.VectorCount
		a.VectorCount = &n
	}
	return a
}
