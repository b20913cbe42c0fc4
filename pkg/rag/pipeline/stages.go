package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"

	"docrag-be/internal/entity"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/blob"
	"docrag-be/pkg/chunker"
	"docrag-be/pkg/embedding"
	"docrag-be/pkg/events"
	"docrag-be/pkg/parser"
	"docrag-be/pkg/vectorindex"

	"github.com/google/uuid"
)

func (p *Pipeline) parse(ctx context.Context, doc *entity.Document, ws *entity.Workspace) (events.StageEvent, error) {
	rc, err := p.blobs.Get(ctx, doc.BlobKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return events.StageEvent{}, apperror.Internal("uploaded file is missing", err)
		}
		return events.StageEvent{}, err
	}
	defer rc.Close()

	ft := parser.FileTypeFromMIME(doc.MimeType)
	if ft == parser.FileTypeUnknown {
		ft = parser.FileTypeFromExt(doc.Filename)
	}
	parsed, err := p.parsers.Parse(ctx, ft, rc)
	if err != nil {
		return events.StageEvent{}, err
	}

	key := blob.TextKey(doc.WorkspaceId, doc.Id)
	if err := p.blobs.Put(ctx, key, strings.NewReader(parsed.Text)); err != nil {
		return events.StageEvent{}, err
	}
	return events.StageEvent{Type: events.DocumentParsed, TextKey: key}, nil
}

func (p *Pipeline) chunk(ctx context.Context, doc *entity.Document, ws *entity.Workspace) (events.StageEvent, error) {
	text, err := p.readText(ctx, doc)
	if err != nil {
		return events.StageEvent{}, err
	}

	cfg := ws.RagConfig
	c, err := p.chunkers.Get(cfg.ChunkAlgorithm)
	if err != nil {
		return events.StageEvent{}, err
	}
	pieces := c.Chunk(text, chunker.Options{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap})
	if len(pieces) == 0 {
		return events.StageEvent{}, apperror.ErrNoTextContent
	}

	chunks := make([]*entity.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, &entity.Chunk{
			Id:          uuid.New(),
			DocumentId:  doc.Id,
			WorkspaceId: doc.WorkspaceId,
			Ordinal:     i,
			Content:     piece,
		})
	}
	if err := ctx.Err(); err != nil {
		return events.StageEvent{}, err
	}

	uow := p.repos.NewUnitOfWork(ctx)
	if err := uow.ChunkRepository().ReplaceForDocument(ctx, doc.Id, chunks); err != nil {
		return events.StageEvent{}, err
	}
	return events.StageEvent{Type: events.DocumentChunked, ChunkCount: len(chunks)}, nil
}

// embed only embeds chunks that have no vector yet, and persists each batch,
// so a retried or resumed stage continues where it stopped.
func (p *Pipeline) embed(ctx context.Context, doc *entity.Document, ws *entity.Workspace) (events.StageEvent, error) {
	cfg := ws.RagConfig
	provider, err := p.embedders.Get(cfg.EmbeddingAlgorithm)
	if err != nil {
		return events.StageEvent{}, err
	}
	if provider.Dimension() != cfg.EmbeddingDimension {
		return events.StageEvent{}, apperror.WithMessage(apperror.ErrDimensionMismatch,
			"%s produces %d dimensions, workspace expects %d", provider.Name(), provider.Dimension(), cfg.EmbeddingDimension)
	}

	uow := p.repos.NewUnitOfWork(ctx)
	chunks := uow.ChunkRepository()
	pending, err := chunks.FindPendingEmbedding(ctx, doc.Id)
	if err != nil {
		return events.StageEvent{}, err
	}

	for start := 0; start < len(pending); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}
		vectors, err := provider.Embed(ctx, texts, embedding.TaskRetrievalDocument)
		if err != nil {
			return events.StageEvent{}, err
		}
		if len(vectors) != len(batch) {
			return events.StageEvent{}, apperror.Transient("embedding backend returned a short batch", nil)
		}

		updates := make([]entity.ChunkEmbedding, len(batch))
		for i, ch := range batch {
			if len(vectors[i]) != cfg.EmbeddingDimension {
				return events.StageEvent{}, apperror.WithMessage(apperror.ErrDimensionMismatch,
					"chunk %d has %d dimensions, workspace expects %d", ch.Ordinal, len(vectors[i]), cfg.EmbeddingDimension)
			}
			updates[i] = entity.ChunkEmbedding{ChunkId: ch.Id, Embedding: vectors[i]}
		}
		if err := chunks.UpdateEmbeddings(ctx, updates); err != nil {
			return events.StageEvent{}, err
		}
	}

	total, err := chunks.CountByDocument(ctx, doc.Id)
	if err != nil {
		return events.StageEvent{}, err
	}
	return events.StageEvent{Type: events.DocumentEmbedded, VectorCount: int(total)}, nil
}

func (p *Pipeline) indexVectors(ctx context.Context, doc *entity.Document, ws *entity.Workspace) (events.StageEvent, error) {
	uow := p.repos.NewUnitOfWork(ctx)
	chunks, err := uow.ChunkRepository().FindByDocument(ctx, doc.Id)
	if err != nil {
		return events.StageEvent{}, err
	}
	if len(chunks) == 0 {
		return events.StageEvent{}, apperror.ErrNoTextContent
	}

	vectors := make([]vectorindex.Vector, 0, len(chunks))
	for _, ch := range chunks {
		if !ch.HasEmbedding() {
			return events.StageEvent{}, apperror.Internal("chunk has no embedding", nil)
		}
		if len(ch.Embedding) != ws.RagConfig.EmbeddingDimension {
			return events.StageEvent{}, apperror.ErrDimensionMismatch
		}
		vectors = append(vectors, vectorindex.Vector{
			ChunkId:     ch.Id,
			DocumentId:  doc.Id,
			WorkspaceId: doc.WorkspaceId,
			Ordinal:     ch.Ordinal,
			Values:      ch.Embedding,
		})
	}

	if err := p.index.ReplaceDocument(ctx, doc.WorkspaceId, doc.Id, vectors); err != nil {
		return events.StageEvent{}, err
	}
	return events.StageEvent{Type: events.DocumentIndexed, VectorCount: len(vectors)}, nil
}

func (p *Pipeline) readText(ctx context.Context, doc *entity.Document) (string, error) {
	key := doc.TextKey
	if key == "" {
		key = blob.TextKey(doc.WorkspaceId, doc.Id)
	}
	rc, err := p.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return "", apperror.Internal("extracted text is missing", err)
		}
		return "", err
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
