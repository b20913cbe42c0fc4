package memory

import (
	"context"
	"testing"
	"time"

	"docrag-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRepository_TransitionStatusIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	uow := NewRepositoryFactory(NewStore()).NewUnitOfWork(ctx)
	repo := uow.DocumentRepository()

	doc := &entity.Document{WorkspaceId: uuid.New(), Filename: "a.txt", Status: entity.StatusPending}
	require.NoError(t, repo.Create(ctx, doc))

	v1, ok, err := repo.TransitionStatus(ctx, doc.Id, entity.StatusPending, entity.StatusParsing, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), v1)

	_, ok, err = repo.TransitionStatus(ctx, doc.Id, entity.StatusPending, entity.StatusParsing, nil)
	require.NoError(t, err)
	assert.False(t, ok, "second transition from a stale status must not apply")

	got, err := repo.FindByID(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusParsing, got.Status)
}

func TestPipelineJobRepository_ClaimOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewRepositoryFactory(store).NewUnitOfWork(ctx).PipelineJobRepository()
	docID := uuid.New()

	require.NoError(t, repo.Enqueue(ctx, docID, uuid.New(), entity.StatusParsing))

	ok, err := repo.Claim(ctx, docID, entity.StatusParsing, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, docID, entity.StatusParsing, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a duplicate delivery must not claim a leased job")

	ok, err = repo.Claim(ctx, docID, entity.StatusChunking, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPipelineJobRepository_FindStale(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Now()
	store.nowFor = func() time.Time { return base }
	repo := NewRepositoryFactory(store).NewUnitOfWork(ctx).PipelineJobRepository()

	queued := uuid.New()
	leased := uuid.New()
	require.NoError(t, repo.Enqueue(ctx, queued, uuid.New(), entity.StatusChunking))
	require.NoError(t, repo.Enqueue(ctx, leased, uuid.New(), entity.StatusEmbedding))
	_, err := repo.Claim(ctx, leased, entity.StatusEmbedding, time.Second)
	require.NoError(t, err)

	stale, err := repo.FindStale(ctx, base.Add(-time.Minute), base, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	later := base.Add(time.Hour)
	stale, err = repo.FindStale(ctx, later, later, 10)
	require.NoError(t, err)
	assert.Len(t, stale, 2)
}

func TestChatMessageRepository_FindRecentKeepsChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	uow := NewRepositoryFactory(NewStore()).NewUnitOfWork(ctx)
	repo := uow.ChatMessageRepository()
	sessionID := uuid.New()

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, repo.Create(ctx, &entity.ChatMessage{ChatSessionId: sessionID, Content: content}))
	}

	recent, err := repo.FindRecentBySession(ctx, sessionID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Content)
	assert.Equal(t, "three", recent[1].Content)
}
