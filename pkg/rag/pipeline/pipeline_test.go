package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"docrag-be/internal/entity"
	"docrag-be/internal/pkg/logger"
	"docrag-be/internal/repository/memory"
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

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 16

const sampleText = `Retrieval augmented generation grounds answers in documents.
Each document is parsed, split into chunks, embedded and indexed.
Queries are embedded the same way and matched by cosine similarity.
The best passages are handed to the language model as context.`

type flakyEmbedder struct {
	*embedding.HashProvider
	name     string
	failures int32
	calls    int32
	err      error
}

func (f *flakyEmbedder) Name() string {
	return f.name
}

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string, task embedding.TaskType) ([][]float32, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.failures < 0 || n <= f.failures {
		return nil, f.err
	}
	return f.HashProvider.Embed(ctx, texts, task)
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	repos  unitofwork.RepositoryFactory
	index  *vectorindex.MemoryIndex
	blobs  *blob.LocalStore
	broker *broadcast.Broker
	p      *Pipeline
	ws     *entity.Workspace
}

func newFixture(t *testing.T, mutate func(*Config), extra ...embedding.EmbeddingProvider) *fixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	log := logger.NewNopLogger()
	bus := queue.NewGoChannel(64, watermill.NopLogger{})
	broker := broadcast.NewBroker(64, nil, log)
	repos := memory.NewRepositoryFactory(memory.NewStore())
	index := vectorindex.NewMemoryIndex()

	cfg := Config{
		MaxAttempts:      3,
		BackoffInitial:   time.Millisecond,
		BackoffMax:       5 * time.Millisecond,
		EmbedBatchSize:   2,
		LeaseDuration:    time.Minute,
		RecoveryInterval: time.Hour,
		StaleQueuedAfter: time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	embedders := embedding.NewRegistry(embedding.NewHashProvider(testDim))
	for _, e := range extra {
		embedders.Register(e)
	}

	p := New(cfg, Deps{
		Repos:     repos,
		Queue:     bus,
		Notifier:  broadcast.NewNotifier(broker, nil, log),
		Blobs:     blobs,
		Parsers:   parser.DefaultRegistry(),
		Chunkers:  chunker.DefaultRegistry(),
		Embedders: embedders,
		Index:     index,
		Log:       log,
	})

	ws := &entity.Workspace{
		OwnerId: uuid.New(),
		Name:    "test",
		RagConfig: entity.RagConfig{
			RetrieverType:      entity.RetrieverVector,
			ChunkAlgorithm:     "fixed",
			ChunkSize:          80,
			ChunkOverlap:       10,
			EmbeddingAlgorithm: "hash",
			EmbeddingDimension: testDim,
			TopK:               5,
		},
		Status: entity.ProvisioningStatusReady,
	}
	require.NoError(t, repos.NewUnitOfWork(ctx).WorkspaceRepository().Create(ctx, ws))

	t.Cleanup(func() {
		cancel()
		p.Wait()
		_ = bus.Close()
	})

	return &fixture{t: t, ctx: ctx, repos: repos, index: index, blobs: blobs, broker: broker, p: p, ws: ws}
}

func (f *fixture) start() {
	require.NoError(f.t, f.p.Start(f.ctx))
}

func (f *fixture) upload(filename, mime, content string) *entity.Document {
	f.t.Helper()
	doc := &entity.Document{
		Id:          uuid.New(),
		WorkspaceId: f.ws.Id,
		Filename:    filename,
		MimeType:    mime,
		SizeBytes:   int64(len(content)),
		Status:      entity.StatusPending,
	}
	doc.BlobKey = blob.OriginalKey(doc.WorkspaceId, doc.Id)
	require.NoError(f.t, f.blobs.Put(f.ctx, doc.BlobKey, strings.NewReader(content)))
	require.NoError(f.t, f.repos.NewUnitOfWork(f.ctx).DocumentRepository().Create(f.ctx, doc))
	return doc
}

func (f *fixture) document(id uuid.UUID) *entity.Document {
	doc, err := f.repos.NewUnitOfWork(f.ctx).DocumentRepository().FindByID(f.ctx, id)
	require.NoError(f.t, err)
	return doc
}

func (f *fixture) job(id uuid.UUID) *entity.PipelineJob {
	job, err := f.repos.NewUnitOfWork(f.ctx).PipelineJobRepository().FindByDocument(f.ctx, id)
	require.NoError(f.t, err)
	return job
}

func (f *fixture) waitFor(id uuid.UUID, status entity.ProcessingStatus) *entity.Document {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		doc := f.document(id)
		return doc != nil && doc.Status == status
	}, 5*time.Second, 5*time.Millisecond, "document never reached %s", status)
	return f.document(id)
}

func TestPipeline_DocumentReachesReady(t *testing.T) {
	f := newFixture(t, nil)
	f.start()
	doc := f.upload("notes.txt", "text/plain", sampleText)

	sub, err := f.broker.Subscribe(f.ctx, broadcast.DocumentTopic(doc.Id), func(context.Context, string) ([]broadcast.StatusEvent, error) {
		return nil, nil
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.p.Submit(f.ctx, doc.Id))
	ready := f.waitFor(doc.Id, entity.StatusReady)

	assert.Greater(t, ready.ChunkCount, 1)
	assert.Equal(t, ready.ChunkCount, ready.VectorCount)
	assert.Equal(t, blob.TextKey(doc.WorkspaceId, doc.Id), ready.TextKey)

	chunks, err := f.repos.NewUnitOfWork(f.ctx).ChunkRepository().FindByDocument(f.ctx, doc.Id)
	require.NoError(t, err)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
		assert.Len(t, ch.Embedding, testDim)
	}

	count, err := f.index.Count(f.ctx, f.ws.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunks)), count)

	job := f.job(doc.Id)
	require.NotNil(t, job)
	assert.Equal(t, entity.JobStateDone, job.State)

	var statuses []string
	var last int64
	for len(statuses) < 5 {
		select {
		case ev := <-sub.C():
			assert.Greater(t, ev.Version, last)
			last = ev.Version
			statuses = append(statuses, ev.Status)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing status events, got %v", statuses)
		}
	}
	assert.Equal(t, []string{"parsing", "chunking", "embedding", "indexing", "ready"}, statuses)
}

func TestPipeline_FailureIsIsolatedAndNotRetried(t *testing.T) {
	f := newFixture(t, nil)
	f.start()

	bad := f.upload("broken.pdf", "application/pdf", "this is not a pdf at all")
	good := f.upload("good.txt", "text/plain", sampleText)

	require.NoError(t, f.p.Submit(f.ctx, bad.Id))
	require.NoError(t, f.p.Submit(f.ctx, good.Id))

	failed := f.waitFor(bad.Id, entity.StatusError)
	f.waitFor(good.Id, entity.StatusReady)

	require.NotNil(t, failed.ErrorMessage)
	assert.NotEmpty(t, *failed.ErrorMessage)

	job := f.job(bad.Id)
	require.NotNil(t, job)
	assert.Equal(t, entity.JobStateFailed, job.State)
	assert.Equal(t, entity.StatusParsing, job.Stage)
	assert.Equal(t, 1, job.Attempts, "input errors must not be retried")
}

func TestPipeline_TransientFailuresAreRetried(t *testing.T) {
	flaky := &flakyEmbedder{
		HashProvider: embedding.NewHashProvider(testDim),
		name:         "flaky",
		failures:     2,
		err:          apperror.ErrEmbeddingUnavailable,
	}
	f := newFixture(t, nil, flaky)
	f.ws.RagConfig.EmbeddingAlgorithm = "flaky"
	f.ws.RagConfig.ChunkSize = 1000
	f.ws.RagConfig.ChunkOverlap = 0
	f.ws.Id = uuid.New()
	require.NoError(t, f.repos.NewUnitOfWork(f.ctx).WorkspaceRepository().Create(f.ctx, f.ws))
	f.start()

	doc := f.upload("notes.txt", "text/plain", sampleText)
	require.NoError(t, f.p.Submit(f.ctx, doc.Id))

	f.waitFor(doc.Id, entity.StatusReady)
	assert.Equal(t, int32(3), atomic.LoadInt32(&flaky.calls))
}

func TestPipeline_RetriesAreBounded(t *testing.T) {
	down := &flakyEmbedder{
		HashProvider: embedding.NewHashProvider(testDim),
		name:         "down",
		failures:     -1,
		err:          apperror.ErrEmbeddingUnavailable,
	}
	f := newFixture(t, nil, down)
	f.ws.RagConfig.EmbeddingAlgorithm = "down"
	f.ws.Id = uuid.New()
	require.NoError(t, f.repos.NewUnitOfWork(f.ctx).WorkspaceRepository().Create(f.ctx, f.ws))
	f.start()

	doc := f.upload("notes.txt", "text/plain", sampleText)
	require.NoError(t, f.p.Submit(f.ctx, doc.Id))

	failed := f.waitFor(doc.Id, entity.StatusError)
	assert.Contains(t, *failed.ErrorMessage, "embedding backend is unavailable")
	assert.Equal(t, int32(3), atomic.LoadInt32(&down.calls))
	assert.Equal(t, 3, f.job(doc.Id).Attempts)
}

func TestPipeline_DuplicateDeliveriesAreIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.start()

	doc := f.upload("notes.txt", "text/plain", sampleText)
	require.NoError(t, f.p.Submit(f.ctx, doc.Id))
	ready := f.waitFor(doc.Id, entity.StatusReady)

	require.NoError(t, queue.PublishJSON(f.p.queue, events.TopicParseJobs, events.StageJob{
		DocumentId: doc.Id, WorkspaceId: f.ws.Id, Stage: string(entity.StatusParsing),
	}))
	require.NoError(t, queue.PublishJSON(f.p.queue, events.DocumentParsed, events.StageEvent{
		Type: events.DocumentParsed, DocumentId: doc.Id, WorkspaceId: f.ws.Id, Stage: string(entity.StatusParsing),
	}))

	// a second document passes through the same topics after the duplicates
	other := f.upload("other.txt", "text/plain", sampleText)
	require.NoError(t, f.p.Submit(f.ctx, other.Id))
	f.waitFor(other.Id, entity.StatusReady)

	after := f.document(doc.Id)
	assert.Equal(t, entity.StatusReady, after.Status)
	assert.Equal(t, ready.StatusVersion, after.StatusVersion)
	assert.Equal(t, ready.ChunkCount, after.ChunkCount)
}

func TestPipeline_RecoverySendsLostJobs(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.StaleQueuedAfter = time.Nanosecond })

	doc := f.upload("notes.txt", "text/plain", sampleText)
	// nothing is subscribed yet, so the parse job is lost
	require.NoError(t, f.p.Submit(f.ctx, doc.Id))
	time.Sleep(time.Millisecond)

	f.start()
	f.waitFor(doc.Id, entity.StatusReady)
}

func TestPipeline_ResumesEmbeddingWhereItStopped(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.StaleQueuedAfter = time.Nanosecond })
	uow := f.repos.NewUnitOfWork(f.ctx)

	doc := f.upload("notes.txt", "text/plain", sampleText)
	_, ok, err := uow.DocumentRepository().TransitionStatus(f.ctx, doc.Id, entity.StatusPending, entity.StatusEmbedding, nil)
	require.NoError(t, err)
	require.True(t, ok)

	marker := make([]float32, testDim)
	marker[0] = 1
	chunks := []*entity.Chunk{
		{DocumentId: doc.Id, WorkspaceId: f.ws.Id, Ordinal: 0, Content: "already embedded", Embedding: marker},
		{DocumentId: doc.Id, WorkspaceId: f.ws.Id, Ordinal: 1, Content: "still waiting"},
	}
	require.NoError(t, uow.ChunkRepository().ReplaceForDocument(f.ctx, doc.Id, chunks))

	// a worker claimed the job and died before reporting
	jobs := uow.PipelineJobRepository()
	require.NoError(t, jobs.Enqueue(f.ctx, doc.Id, f.ws.Id, entity.StatusEmbedding))
	claimed, err := jobs.Claim(f.ctx, doc.Id, entity.StatusEmbedding, time.Nanosecond)
	require.NoError(t, err)
	require.True(t, claimed)
	time.Sleep(time.Millisecond)

	f.start()
	f.waitFor(doc.Id, entity.StatusReady)

	stored, err := uow.ChunkRepository().FindByDocument(f.ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, marker, stored[0].Embedding)
	assert.Len(t, stored[1].Embedding, testDim)
	assert.NotEqual(t, marker, stored[1].Embedding)
}

func TestPipeline_ReprocessReplacesVectors(t *testing.T) {
	f := newFixture(t, nil)
	f.start()

	doc := f.upload("notes.txt", "text/plain", sampleText)
	require.NoError(t, f.p.Submit(f.ctx, doc.Id))
	first := f.waitFor(doc.Id, entity.StatusReady)

	require.ErrorIs(t, f.p.Submit(f.ctx, doc.Id), apperror.ErrInvalidTransition)
	require.NoError(t, f.p.Reprocess(f.ctx, doc.Id))
	require.Eventually(t, func() bool {
		d := f.document(doc.Id)
		return d.Status == entity.StatusReady && d.StatusVersion > first.StatusVersion
	}, 5*time.Second, 5*time.Millisecond)

	count, err := f.index.Count(f.ctx, f.ws.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(first.ChunkCount), count)
}

func TestPipeline_ReprocessRejectsBusyDocument(t *testing.T) {
	f := newFixture(t, nil)
	doc := f.upload("notes.txt", "text/plain", sampleText)

	assert.ErrorIs(t, f.p.Reprocess(f.ctx, doc.Id), apperror.ErrDocumentBusy)
	assert.ErrorIs(t, f.p.Reprocess(f.ctx, uuid.New()), apperror.ErrDocumentNotFound)
}

// statusAtDelete records the document status each time vectors are dropped.
type statusAtDelete struct {
	*vectorindex.MemoryIndex
	f        *fixture
	statuses []entity.ProcessingStatus
}

func (s *statusAtDelete) DeleteByDocument(ctx context.Context, workspaceId, documentId uuid.UUID) (int64, error) {
	if doc := s.f.document(documentId); doc != nil {
		s.statuses = append(s.statuses, doc.Status)
	}
	return s.MemoryIndex.DeleteByDocument(ctx, workspaceId, documentId)
}

func TestPipeline_ReprocessDropsVectorsOnlyAfterClaim(t *testing.T) {
	f := newFixture(t, nil)
	recorder := &statusAtDelete{MemoryIndex: f.index, f: f}
	f.p.index = recorder

	doc := f.upload("notes.txt", "text/plain", sampleText)
	require.NoError(t, f.index.ReplaceDocument(f.ctx, f.ws.Id, doc.Id, []vectorindex.Vector{{
		ChunkId: uuid.New(), DocumentId: doc.Id, WorkspaceId: f.ws.Id, Values: make([]float32, testDim),
	}}))

	require.ErrorIs(t, f.p.Reprocess(f.ctx, doc.Id), apperror.ErrDocumentBusy)
	count, err := f.index.Count(f.ctx, f.ws.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "a rejected reprocess keeps the vectors")
	assert.Empty(t, recorder.statuses)

	_, ok, err := f.repos.NewUnitOfWork(f.ctx).DocumentRepository().TransitionStatus(f.ctx, doc.Id, entity.StatusPending, entity.StatusError, nil)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.p.Reprocess(f.ctx, doc.Id))
	assert.Equal(t, []entity.ProcessingStatus{entity.StatusPending}, recorder.statuses)
	count, err = f.index.Count(f.ctx, f.ws.Id)
	require.NoError(t, err)
	assert.Zero(t, count)
}
