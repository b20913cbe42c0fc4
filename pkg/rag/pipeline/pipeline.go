// Package pipeline drives documents through parse, chunk, embed and index.
//
// Workers only report stage outcomes. Every status transition is made by the
// coordinator as a compare-and-set on the document row, so duplicate or late
// deliveries cannot move a document backwards.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docrag-be/internal/entity"
	"docrag-be/internal/pkg/logger"
	"docrag-be/internal/repository/unitofwork"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/blob"
	"docrag-be/pkg/chunker"
	"docrag-be/pkg/embedding"
	"docrag-be/pkg/events"
	"docrag-be/pkg/parser"
	"docrag-be/pkg/queue"
	"docrag-be/pkg/rag/broadcast"
	"docrag-be/pkg/vectorindex"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Deps struct {
	Repos     unitofwork.RepositoryFactory
	Queue     queue.PubSub
	Notifier  *broadcast.Notifier
	Gate      *Gate
	Blobs     blob.Store
	Parsers   *parser.Registry
	Chunkers  *chunker.Registry
	Embedders *embedding.Registry
	Index     vectorindex.Index
	Log       logger.ILogger
}

type Pipeline struct {
	cfg       Config
	repos     unitofwork.RepositoryFactory
	queue     queue.PubSub
	notifier  *broadcast.Notifier
	gate      *Gate
	blobs     blob.Store
	parsers   *parser.Registry
	chunkers  *chunker.Registry
	embedders *embedding.Registry
	index     vectorindex.Index
	log       logger.ILogger
	tracer    trace.Tracer

	stages      map[entity.ProcessingStatus]stageRunner
	dispatchers []*queue.Dispatcher
	wg          sync.WaitGroup
}

func New(cfg Config, deps Deps) *Pipeline {
	p := &Pipeline{
		cfg:       cfg.withDefaults(),
		repos:     deps.Repos,
		queue:     deps.Queue,
		notifier:  deps.Notifier,
		gate:      deps.Gate,
		blobs:     deps.Blobs,
		parsers:   deps.Parsers,
		chunkers:  deps.Chunkers,
		embedders: deps.Embedders,
		index:     deps.Index,
		log:       deps.Log,
		tracer:    otel.Tracer("docrag-be/pipeline"),
	}
	if p.gate == nil {
		p.gate = NewGate()
	}
	p.stages = map[entity.ProcessingStatus]stageRunner{
		entity.StatusParsing:   p.parse,
		entity.StatusChunking:  p.chunk,
		entity.StatusEmbedding: p.embed,
		entity.StatusIndexing:  p.indexVectors,
	}
	return p
}

func (p *Pipeline) Gate() *Gate {
	return p.gate
}

// Start subscribes the coordinator and the stage workers, runs one recovery
// sweep and keeps sweeping every RecoveryInterval until ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) error {
	for _, topic := range events.CompletionTopics {
		d := queue.NewDispatcher(p.queue, topic, 1, p.log)
		if err := d.Start(ctx, p.handleCompletion); err != nil {
			return err
		}
		p.dispatchers = append(p.dispatchers, d)
	}

	for stage, topic := range stageTopics {
		stage := stage
		d := queue.NewDispatcher(p.queue, topic, p.cfg.workersFor(stage), p.log)
		if err := d.Start(ctx, func(ctx context.Context, payload []byte) {
			p.handleJob(ctx, stage, payload)
		}); err != nil {
			return err
		}
		p.dispatchers = append(p.dispatchers, d)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.recoveryLoop(ctx)
	}()

	p.log.Info("Pipeline", "Pipeline started", map[string]interface{}{
		"workers": p.cfg.Workers,
	})
	return nil
}

// Wait blocks until every dispatcher and the recovery loop have stopped.
func (p *Pipeline) Wait() {
	for _, d := range p.dispatchers {
		d.Wait()
	}
	p.wg.Wait()
}

// Submit starts processing a pending document.
func (p *Pipeline) Submit(ctx context.Context, documentId uuid.UUID) error {
	uow := p.repos.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	doc, err := uow.DocumentRepository().FindByID(ctx, documentId)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperror.ErrDocumentNotFound
	}
	if p.gate.Closed(doc.WorkspaceId, doc.Id) {
		return apperror.ErrDocumentBusy
	}
	if doc.Status != entity.StatusPending {
		return apperror.WithMessage(apperror.ErrInvalidTransition, "document is %s, not pending", doc.Status)
	}

	version, ok, err := uow.DocumentRepository().TransitionStatus(ctx, doc.Id, entity.StatusPending, entity.StatusParsing, nil)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.WithMessage(apperror.ErrInvalidTransition, "document left pending concurrently")
	}
	if err := uow.PipelineJobRepository().Enqueue(ctx, doc.Id, doc.WorkspaceId, entity.StatusParsing); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	p.notifier.Document(ctx, doc.WorkspaceId, doc.Id, string(entity.StatusParsing), version, nil)
	p.publishJob(doc.WorkspaceId, doc.Id, entity.StatusParsing)
	return nil
}

// Reprocess resets a ready or failed document to pending, drops its chunks
// and vectors, and submits it again.
func (p *Pipeline) Reprocess(ctx context.Context, documentId uuid.UUID) error {
	uow := p.repos.NewUnitOfWork(ctx)
	doc, err := uow.DocumentRepository().FindByID(ctx, documentId)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperror.ErrDocumentNotFound
	}
	if !doc.Status.CanReingest() || p.gate.Closed(doc.WorkspaceId, doc.Id) {
		return apperror.ErrDocumentBusy
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	version, ok, err := uow.DocumentRepository().TransitionStatus(ctx, doc.Id, doc.Status, entity.StatusPending, nil)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.ErrDocumentBusy
	}
	if err := uow.ChunkRepository().DeleteByDocument(ctx, doc.Id); err != nil {
		return err
	}
	zero := 0
	if err := uow.DocumentRepository().UpdateArtifacts(ctx, doc.Id, entity.DocumentArtifacts{ChunkCount: &zero, VectorCount: &zero}); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	// Vectors go only once the document is ours. The index stage replaces
	// them wholesale, so a failed delete here only leaves stale vectors
	// whose chunks no longer hydrate.
	if _, err := p.index.DeleteByDocument(ctx, doc.WorkspaceId, doc.Id); err != nil {
		p.log.Warn("Pipeline", "Failed to drop vectors before reprocessing", map[string]interface{}{
			"document_id": doc.Id,
			"error":       err.Error(),
		})
	}
	p.notifier.Document(ctx, doc.WorkspaceId, doc.Id, string(entity.StatusPending), version, nil)

	return p.Submit(ctx, doc.Id)
}

// publishJob is fire and forget: a lost message leaves the job row queued
// and the recovery sweep sends it again.
func (p *Pipeline) publishJob(workspaceId, documentId uuid.UUID, stage entity.ProcessingStatus) {
	topic, ok := stageTopics[stage]
	if !ok {
		return
	}
	job := events.StageJob{DocumentId: documentId, WorkspaceId: workspaceId, Stage: string(stage)}
	if err := queue.PublishJSON(p.queue, topic, job); err != nil {
		p.log.Error("Pipeline", "Failed to publish stage job", map[string]interface{}{
			"document_id": documentId,
			"stage":       stage,
			"error":       err.Error(),
		})
	}
}

func (p *Pipeline) publishEvent(ev events.StageEvent) {
	if err := queue.PublishJSON(p.queue, ev.Type, ev); err != nil {
		p.log.Error("Pipeline", "Failed to publish stage event", map[string]interface{}{
			"document_id": ev.DocumentId,
			"event":       ev.Type,
			"error":       err.Error(),
		})
	}
}

func stageLabel(stage entity.ProcessingStatus) string {
	return fmt.Sprintf("pipeline.%s", stage)
}

func now() time.Time {
	return time.Now().UTC()
}
