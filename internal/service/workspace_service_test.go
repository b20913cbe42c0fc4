package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"docrag-be/internal/dto"
	"docrag-be/internal/entity"
	"docrag-be/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceService_ProvisioningResolvesDimension(t *testing.T) {
	h := newHarness(t)

	created, err := h.workspace.Create(h.ctx, h.owner, &dto.CreateWorkspaceRequest{Name: "handbook"})
	require.NoError(t, err)
	assert.Equal(t, string(entity.ProvisioningStatusProvisioning), created.Status)
	assert.Equal(t, "hash", created.RagConfig.EmbeddingAlgorithm)

	h.waitWorkspace(created.Id, entity.ProvisioningStatusReady)

	ws, err := h.workspace.Show(h.ctx, h.owner, created.Id)
	require.NoError(t, err)
	assert.Equal(t, testDim, ws.RagConfig.EmbeddingDimension)
	assert.Greater(t, ws.StatusVersion, created.StatusVersion)
}

func TestWorkspaceService_ConfigImmutableOnceReady(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()

	_, err := h.workspace.UpdateRagConfig(h.ctx, h.owner, ws.Id, &dto.UpdateRagConfigRequest{
		RagConfig: dto.RagConfigDTO{ChunkSize: 500},
	})
	assert.True(t, errors.Is(err, apperror.ErrConfigImmutable))
	assert.Equal(t, apperror.KindPolicy, apperror.KindOf(err))
}

func TestWorkspaceService_RejectsUnknownAlgorithm(t *testing.T) {
	h := newHarness(t)

	_, err := h.workspace.Create(h.ctx, h.owner, &dto.CreateWorkspaceRequest{
		Name:      "bad",
		RagConfig: &dto.RagConfigDTO{EmbeddingAlgorithm: "word2vec"},
	})
	assert.True(t, errors.Is(err, apperror.ErrUnknownAlgorithm))

	all, err := h.workspace.GetAll(h.ctx, h.owner)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWorkspaceService_GraphRetrieverFailsProvisioning(t *testing.T) {
	h := newHarness(t)

	ws, err := h.workspace.Create(h.ctx, h.owner, &dto.CreateWorkspaceRequest{
		Name: "graph",
		RagConfig: &dto.RagConfigDTO{
			RetrieverType:            entity.RetrieverGraph,
			GraphHopCount:            2,
			GraphExtractionAlgorithm: "llm",
		},
	})
	require.NoError(t, err)
	h.waitWorkspace(ws.Id, entity.ProvisioningStatusError)

	st, err := h.workspace.Status(h.ctx, h.owner, ws.Id)
	require.NoError(t, err)
	require.NotNil(t, st.Message)
	assert.Contains(t, *st.Message, "graph")

	_, err = h.document.Upload(h.ctx, h.owner, &dto.UploadDocumentRequest{
		WorkspaceId: ws.Id,
		Filename:    "a.txt",
		Content:     []byte(handbook),
	})
	assert.True(t, errors.Is(err, apperror.ErrWorkspaceNotReady))
}

func TestWorkspaceService_OtherOwnerSeesNothing(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()
	stranger := uuid.New()

	_, err := h.workspace.Show(h.ctx, stranger, ws.Id)
	assert.True(t, errors.Is(err, apperror.ErrWorkspaceNotFound))

	_, err = h.workspace.Search(h.ctx, stranger, ws.Id, "leave")
	assert.True(t, errors.Is(err, apperror.ErrWorkspaceNotFound))

	err = h.workspace.Delete(h.ctx, stranger, ws.Id)
	assert.True(t, errors.Is(err, apperror.ErrWorkspaceNotFound))

	all, err := h.workspace.GetAll(h.ctx, stranger)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWorkspaceService_SearchFindsUploadedText(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()
	doc := h.upload(ws.Id, "handbook.txt", handbook)
	h.waitDocument(doc.Id, entity.StatusReady)

	res, err := h.workspace.Search(h.ctx, h.owner, ws.Id, handbook)
	require.NoError(t, err)
	require.NotEmpty(t, res.Passages)
	assert.Equal(t, doc.Id, res.Passages[0].DocumentId)
	assert.Equal(t, ws.Id, res.WorkspaceId)

	_, err = h.workspace.Search(h.ctx, h.owner, ws.Id, "   ")
	assert.True(t, errors.Is(err, apperror.ErrEmptyQuery))
}

func TestWorkspaceService_DeleteRemovesEverything(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()
	doc := h.upload(ws.Id, "handbook.txt", handbook)
	h.waitDocument(doc.Id, entity.StatusReady)

	session, err := h.chat.CreateSession(h.ctx, h.owner, &dto.CreateSessionRequest{WorkspaceId: ws.Id})
	require.NoError(t, err)

	count, err := h.index.Count(h.ctx, ws.Id)
	require.NoError(t, err)
	require.Positive(t, count)

	require.NoError(t, h.workspace.Delete(h.ctx, h.owner, ws.Id))

	count, err = h.index.Count(h.ctx, ws.Id)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = h.workspace.Show(h.ctx, h.owner, ws.Id)
	assert.True(t, errors.Is(err, apperror.ErrWorkspaceNotFound))
	_, err = h.document.Show(h.ctx, h.owner, doc.Id)
	assert.True(t, errors.Is(err, apperror.ErrDocumentNotFound))
	err = h.chat.Authorize(h.ctx, h.owner, session.Id)
	assert.True(t, errors.Is(err, apperror.ErrSessionNotFound))

	err = h.workspace.Delete(h.ctx, h.owner, ws.Id)
	assert.True(t, errors.Is(err, apperror.ErrWorkspaceNotFound))
}

func TestWorkspaceService_UpdateDuringProvisioningIsKept(t *testing.T) {
	h := newHarness(t)
	gated := newGatedEmbedder()
	h.embedders.Register(gated)

	created, err := h.workspace.Create(h.ctx, h.owner, &dto.CreateWorkspaceRequest{
		Name:      "late edit",
		RagConfig: &dto.RagConfigDTO{EmbeddingAlgorithm: "gated"},
	})
	require.NoError(t, err)

	select {
	case <-gated.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("provisioning never reached the embedder")
	}

	updated, err := h.workspace.UpdateRagConfig(h.ctx, h.owner, created.Id, &dto.UpdateRagConfigRequest{
		RagConfig: dto.RagConfigDTO{ChunkSize: 500},
	})
	require.NoError(t, err)
	assert.Equal(t, 500, updated.RagConfig.ChunkSize)

	close(gated.release)
	h.waitWorkspace(created.Id, entity.ProvisioningStatusReady)

	ws, err := h.workspace.Show(h.ctx, h.owner, created.Id)
	require.NoError(t, err)
	assert.Equal(t, 500, ws.RagConfig.ChunkSize)
	assert.Equal(t, testDim, ws.RagConfig.EmbeddingDimension)
}

func TestWorkspaceService_InterruptedDeleteCanBeRetried(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()
	doc := h.upload(ws.Id, "handbook.txt", handbook)
	h.waitDocument(doc.Id, entity.StatusReady)

	_, release, err := h.gate.Enter(context.Background(), ws.Id, uuid.New())
	require.NoError(t, err)

	short, cancel := context.WithTimeout(h.ctx, 50*time.Millisecond)
	defer cancel()
	err = h.workspace.Delete(short, h.owner, ws.Id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	st, err := h.workspace.Status(h.ctx, h.owner, ws.Id)
	require.NoError(t, err)
	assert.Equal(t, string(entity.ProvisioningStatusDeleting), st.Status)

	release()
	require.NoError(t, h.workspace.Delete(h.ctx, h.owner, ws.Id))

	count, err := h.index.Count(h.ctx, ws.Id)
	require.NoError(t, err)
	assert.Zero(t, count)
	_, err = h.workspace.Show(h.ctx, h.owner, ws.Id)
	assert.True(t, errors.Is(err, apperror.ErrWorkspaceNotFound))
}
