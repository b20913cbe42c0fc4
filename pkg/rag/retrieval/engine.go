// Package retrieval answers "which chunks of this workspace best match the
// query" with workspace-scoped vector search and optional reranking.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"docrag-be/internal/config"
	"docrag-be/internal/entity"
	"docrag-be/internal/pkg/logger"
	"docrag-be/internal/repository/unitofwork"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/embedding"
	"docrag-be/pkg/rerank"
	"docrag-be/pkg/vectorindex"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const SourceIndex = "index"

type Config struct {
	// MinRelevance is the score a passage needs to count as context at all.
	MinRelevance        float64
	CandidateMultiplier int
	MaxQueryLength      int
	Timeout             time.Duration
}

func ConfigFrom(c config.RetrievalConfig) Config {
	return Config{
		MinRelevance:        c.MinRelevance,
		CandidateMultiplier: c.CandidateMultiplier,
		MaxQueryLength:      c.MaxQueryLength,
		Timeout:             c.Timeout,
	}
}

type Engine struct {
	cfg       Config
	repos     unitofwork.RepositoryFactory
	embedders *embedding.Registry
	rerankers *rerank.Registry
	index     vectorindex.Index
	cache     EmbeddingCache
	log       logger.ILogger
	tracer    trace.Tracer
}

// NewEngine builds an engine. cache may be nil.
func NewEngine(cfg Config, repos unitofwork.RepositoryFactory, embedders *embedding.Registry, rerankers *rerank.Registry, index vectorindex.Index, cache EmbeddingCache, log logger.ILogger) *Engine {
	if cfg.CandidateMultiplier < 1 {
		cfg.CandidateMultiplier = 1
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 4000
	}
	return &Engine{
		cfg:       cfg,
		repos:     repos,
		embedders: embedders,
		rerankers: rerankers,
		index:     index,
		cache:     cache,
		log:       log,
		tracer:    otel.Tracer("docrag-be/retrieval"),
	}
}

type scored struct {
	passage entity.RetrievedPassage
	seq     int64
}

// Retrieve returns at most top-K passages of the workspace, scores in [0,1],
// sorted by descending score with insertion order breaking ties. An empty
// result means nothing cleared the relevance threshold.
func (e *Engine) Retrieve(ctx context.Context, workspaceId uuid.UUID, query string) (*entity.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ErrEmptyQuery
	}
	if utf8.RuneCountInString(query) > e.cfg.MaxQueryLength {
		return nil, apperror.WithMessage(apperror.ErrQueryTooLong, "query exceeds %d characters", e.cfg.MaxQueryLength)
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	ctx, span := e.tracer.Start(ctx, "retrieval.retrieve", trace.WithAttributes(
		attribute.String("workspace.id", workspaceId.String()),
	))
	defer span.End()

	uow := e.repos.NewUnitOfWork(ctx)
	ws, err := uow.WorkspaceRepository().FindByID(ctx, workspaceId)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, apperror.ErrWorkspaceNotFound
	}
	if !ws.IsReady() {
		return nil, apperror.ErrWorkspaceNotReady
	}
	cfg := ws.RagConfig

	vector, err := e.embedQuery(ctx, cfg, query)
	if err != nil {
		return nil, err
	}

	limit := cfg.TopK
	if cfg.RerankEnabled {
		limit = cfg.TopK * e.cfg.CandidateMultiplier
	}
	hits, err := e.index.Search(ctx, ws.Id, vector, limit)
	if err != nil {
		if errors.Is(err, apperror.ErrIndexUnavailable) {
			return nil, err
		}
		return nil, apperror.Wrap(apperror.ErrIndexUnavailable, err)
	}

	result := &entity.RetrievalResult{WorkspaceId: ws.Id, Query: query, Passages: []entity.RetrievedPassage{}, Source: SourceIndex}

	candidates, err := e.relevant(ws.Id, hits)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		e.log.Debug("Retrieval", "No passage above relevance threshold", map[string]interface{}{
			"workspace_id": ws.Id,
			"hits":         len(hits),
		})
		return result, nil
	}

	candidates, err = e.hydrate(ctx, uow, ws.Id, candidates)
	if err != nil {
		return nil, err
	}

	if cfg.RerankEnabled {
		candidates, err = e.rerank(ctx, cfg.RerankAlgorithm, query, candidates)
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].passage.Score != candidates[j].passage.Score {
			return candidates[i].passage.Score > candidates[j].passage.Score
		}
		return candidates[i].seq < candidates[j].seq
	})
	if len(candidates) > cfg.TopK {
		candidates = candidates[:cfg.TopK]
	}
	for _, c := range candidates {
		result.Passages = append(result.Passages, c.passage)
	}
	span.SetAttributes(attribute.Int("retrieval.passages", len(result.Passages)))
	return result, nil
}

func (e *Engine) embedQuery(ctx context.Context, cfg entity.RagConfig, query string) ([]float32, error) {
	provider, err := e.embedders.Get(cfg.EmbeddingAlgorithm)
	if err != nil {
		return nil, err
	}

	key := CacheKey(provider.Name(), cfg.EmbeddingDimension, query)
	if e.cache != nil {
		if vec, ok := e.cache.Get(ctx, key); ok && len(vec) == cfg.EmbeddingDimension {
			return vec, nil
		}
	}

	vectors, err := provider.Embed(ctx, []string{query}, embedding.TaskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || len(vectors[0]) != cfg.EmbeddingDimension {
		return nil, apperror.ErrDimensionMismatch
	}
	if e.cache != nil {
		e.cache.Set(ctx, key, vectors[0])
	}
	return vectors[0], nil
}

// relevant checks tenancy, normalizes scores and applies the threshold.
// A hit from another workspace fails the whole call.
func (e *Engine) relevant(workspaceId uuid.UUID, hits []vectorindex.Hit) ([]scored, error) {
	seen := make(map[uuid.UUID]struct{}, len(hits))
	out := make([]scored, 0, len(hits))
	for _, h := range hits {
		if h.WorkspaceId != workspaceId {
			e.log.Error("Retrieval", "Index returned a foreign chunk", map[string]interface{}{
				"workspace_id": workspaceId,
				"chunk_id":     h.ChunkId,
				"owner":        h.WorkspaceId,
			})
			return nil, apperror.ErrTenantIsolation
		}
		if _, dup := seen[h.ChunkId]; dup {
			continue
		}
		seen[h.ChunkId] = struct{}{}

		// cosine similarity, negatives clamp to zero
		score := clamp01(h.Similarity)
		if score < e.cfg.MinRelevance {
			continue
		}
		out = append(out, scored{
			passage: entity.RetrievedPassage{
				ChunkId:    h.ChunkId,
				DocumentId: h.DocumentId,
				Ordinal:    h.Ordinal,
				Score:      score,
			},
			seq: h.Seq,
		})
	}
	return out, nil
}

// hydrate fills in chunk text and document names. Chunks deleted since the
// search are dropped.
func (e *Engine) hydrate(ctx context.Context, uow unitofwork.UnitOfWork, workspaceId uuid.UUID, candidates []scored) ([]scored, error) {
	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.passage.ChunkId
	}
	chunks, err := uow.ChunkRepository().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*entity.Chunk, len(chunks))
	for _, ch := range chunks {
		byID[ch.Id] = ch
	}

	names := make(map[uuid.UUID]string)
	out := candidates[:0]
	for _, c := range candidates {
		ch, ok := byID[c.passage.ChunkId]
		if !ok {
			continue
		}
		if ch.WorkspaceId != workspaceId {
			return nil, apperror.ErrTenantIsolation
		}
		name, ok := names[ch.DocumentId]
		if !ok {
			doc, err := uow.DocumentRepository().FindByID(ctx, ch.DocumentId)
			if err != nil {
				return nil, err
			}
			if doc == nil {
				continue
			}
			if doc.WorkspaceId != workspaceId {
				return nil, apperror.ErrTenantIsolation
			}
			name = doc.Filename
			names[ch.DocumentId] = name
		}
		c.passage.Content = ch.Content
		c.passage.DocumentName = name
		out = append(out, c)
	}
	return out, nil
}

// rerank rescores candidates. A failing reranker leaves the vector scores in
// place; only cancellation is returned.
func (e *Engine) rerank(ctx context.Context, algorithm, query string, candidates []scored) ([]scored, error) {
	rr, err := e.rerankers.Get(algorithm)
	if err != nil {
		return nil, err
	}

	in := make([]rerank.Candidate, len(candidates))
	for i, c := range candidates {
		in[i] = rerank.Candidate{ID: c.passage.ChunkId.String(), Content: c.passage.Content, Score: c.passage.Score}
	}
	out, err := rr.Rerank(ctx, query, in)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn("Retrieval", "Rerank failed, keeping vector scores", map[string]interface{}{
			"algorithm": algorithm,
			"error":     err.Error(),
		})
		return candidates, nil
	}

	scores := make(map[string]float64, len(out))
	for _, c := range out {
		scores[c.ID] = c.Score
	}
	for i := range candidates {
		if s, ok := scores[candidates[i].passage.ChunkId.String()]; ok {
			candidates[i].passage.Score = clamp01(s)
		}
	}
	return candidates, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
