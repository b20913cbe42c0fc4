package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"docrag-be/internal/dto"
	"docrag-be/internal/entity"
	"docrag-be/internal/pkg/logger"
	"docrag-be/internal/repository/memory"
	"docrag-be/internal/repository/unitofwork"
	"docrag-be/pkg/blob"
	"docrag-be/pkg/chunker"
	"docrag-be/pkg/embedding"
	"docrag-be/pkg/llm"
	"docrag-be/pkg/parser"
	"docrag-be/pkg/queue"
	"docrag-be/pkg/rag/broadcast"
	"docrag-be/pkg/rag/chat"
	"docrag-be/pkg/rag/pipeline"
	"docrag-be/pkg/rag/retrieval"
	"docrag-be/pkg/rerank"
	"docrag-be/pkg/vectorindex"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testDim = 32

const handbook = `Employees accrue twenty days of paid leave per calendar year.
Unused leave carries over to the next year up to a maximum of five days.`

// echoLLM answers with the words of the last user message.
type echoLLM struct{}

func (echoLLM) Chat(ctx context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	return history[len(history)-1].Content, nil
}

func (echoLLM) Generate(ctx context.Context, prompt string, _ ...llm.Option) (string, error) {
	return prompt, nil
}

func (echoLLM) Stream(ctx context.Context, history []llm.Message, onToken llm.TokenHandler, _ ...llm.Option) (string, error) {
	var out strings.Builder
	for _, word := range strings.Fields("noted and answered") {
		if err := onToken(word + " "); err != nil {
			return out.String(), err
		}
		out.WriteString(word + " ")
	}
	return out.String(), nil
}

// gatedEmbedder is the hash embedder behind a gate: Embed signals on
// entered and blocks until release is closed.
type gatedEmbedder struct {
	*embedding.HashProvider
	entered chan struct{}
	release chan struct{}
}

func newGatedEmbedder() *gatedEmbedder {
	return &gatedEmbedder{
		HashProvider: embedding.NewHashProvider(testDim),
		entered:      make(chan struct{}, 8),
		release:      make(chan struct{}),
	}
}

func (g *gatedEmbedder) Name() string {
	return "gated"
}

func (g *gatedEmbedder) Embed(ctx context.Context, texts []string, task embedding.TaskType) ([][]float32, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.HashProvider.Embed(ctx, texts, task)
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	repos     unitofwork.RepositoryFactory
	index     *vectorindex.MemoryIndex
	broker    *broadcast.Broker
	gate      *pipeline.Gate
	embedders *embedding.Registry
	pipeline  *pipeline.Pipeline
	workspace IWorkspaceService
	document  IDocumentService
	chat      IChatService
	status    IStatusService
	owner     uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	log := logger.NewNopLogger()

	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	repos := memory.NewRepositoryFactory(memory.NewStore())
	index := vectorindex.NewMemoryIndex()
	broker := broadcast.NewBroker(64, nil, log)
	notifier := broadcast.NewNotifier(broker, nil, log)
	gate := pipeline.NewGate()

	embedders := embedding.NewRegistry(embedding.NewHashProvider(testDim))
	chunkers := chunker.DefaultRegistry()
	rerankers := rerank.NewRegistry()
	rerankers.Register(rerank.NewLexicalReranker())

	p := pipeline.New(pipeline.Config{
		MaxAttempts:      3,
		BackoffInitial:   time.Millisecond,
		BackoffMax:       5 * time.Millisecond,
		EmbedBatchSize:   4,
		LeaseDuration:    time.Minute,
		RecoveryInterval: time.Hour,
		StaleQueuedAfter: time.Hour,
	}, pipeline.Deps{
		Repos:     repos,
		Queue:     queue.NewGoChannel(64, watermill.NopLogger{}),
		Notifier:  notifier,
		Gate:      gate,
		Blobs:     blobs,
		Parsers:   parser.DefaultRegistry(),
		Chunkers:  chunkers,
		Embedders: embedders,
		Index:     index,
		Log:       log,
	})
	require.NoError(t, p.Start(ctx))

	engine := retrieval.NewEngine(retrieval.Config{
		MinRelevance:        0.2,
		CandidateMultiplier: 2,
		MaxQueryLength:      1000,
		Timeout:             5 * time.Second,
	}, repos, embedders, rerankers, index, retrieval.NewLocalEmbeddingCache(time.Minute), log)
	orchestrator := chat.NewOrchestrator(chat.Config{
		HistoryWindow:     10,
		GenerationTimeout: 5 * time.Second,
		TurnRetention:     time.Minute,
	}, repos, engine, nil, echoLLM{}, log)

	workspaceService := NewWorkspaceService(repos,
		Algorithms{Chunkers: chunkers, Embedders: embedders, Rerankers: rerankers},
		notifier, gate, index, blobs, engine, orchestrator, "hash", 5*time.Second, log)

	t.Cleanup(func() {
		workspaceService.Wait()
		cancel()
		p.Wait()
	})

	return &harness{
		t:         t,
		ctx:       ctx,
		repos:     repos,
		index:     index,
		broker:    broker,
		gate:      gate,
		embedders: embedders,
		pipeline:  p,
		workspace: workspaceService,
		document:  NewDocumentService(repos, p, notifier, index, blobs, 1<<20, log),
		chat:      NewChatService(repos, orchestrator, log),
		status:    NewStatusService(repos, broker),
		owner:     uuid.New(),
	}
}

// readyWorkspace creates a workspace with small chunks and waits for provisioning.
func (h *harness) readyWorkspace() *dto.WorkspaceResponse {
	h.t.Helper()
	ws, err := h.workspace.Create(h.ctx, h.owner, &dto.CreateWorkspaceRequest{
		Name:      "handbook",
		RagConfig: &dto.RagConfigDTO{ChunkSize: 200, ChunkOverlap: 20},
	})
	require.NoError(h.t, err)
	h.waitWorkspace(ws.Id, entity.ProvisioningStatusReady)
	return ws
}

func (h *harness) waitWorkspace(id uuid.UUID, want entity.ProvisioningStatus) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		st, err := h.workspace.Status(h.ctx, h.owner, id)
		return err == nil && st.Status == string(want)
	}, 5*time.Second, 10*time.Millisecond, "workspace never reached %s", want)
}

func (h *harness) waitDocument(id uuid.UUID, want entity.ProcessingStatus) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		st, err := h.document.Status(h.ctx, h.owner, id)
		return err == nil && st.Status == string(want)
	}, 5*time.Second, 10*time.Millisecond, "document never reached %s", want)
}

func (h *harness) upload(workspaceId uuid.UUID, filename, content string) *dto.DocumentResponse {
	h.t.Helper()
	doc, err := h.document.Upload(h.ctx, h.owner, &dto.UploadDocumentRequest{
		WorkspaceId: workspaceId,
		Filename:    filename,
		Content:     []byte(content),
	})
	require.NoError(h.t, err)
	return doc
}
