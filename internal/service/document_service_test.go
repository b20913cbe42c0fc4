package service

import (
	"errors"
	"strings"
	"testing"

	"docrag-be/internal/dto"
	"docrag-be/internal/entity"
	"docrag-be/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentService_UploadReachesReady(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()

	doc := h.upload(ws.Id, "handbook.md", "# Leave\n\n"+handbook)
	assert.Equal(t, string(entity.StatusPending), doc.Status)
	assert.Equal(t, "text/markdown", doc.MimeType)

	h.waitDocument(doc.Id, entity.StatusReady)

	got, err := h.document.Show(h.ctx, h.owner, doc.Id)
	require.NoError(t, err)
	assert.Positive(t, got.ChunkCount)
	assert.Equal(t, got.ChunkCount, got.VectorCount)

	list, err := h.document.GetAll(h.ctx, h.owner, ws.Id)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, doc.Id, list[0].Id)
}

func TestDocumentService_UploadRejections(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()

	cases := []struct {
		name     string
		filename string
		content  []byte
		want     error
	}{
		{"empty", "a.txt", nil, apperror.ErrEmptyFile},
		{"fake pdf", "a.pdf", []byte("just some text"), apperror.ErrCorruptContent},
		{"binary", "a.bin", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d}, apperror.ErrUnsupportedType},
		{"too large", "a.txt", []byte(strings.Repeat("x", 1<<20+1)), apperror.ErrFileTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.document.Upload(h.ctx, h.owner, &dto.UploadDocumentRequest{
				WorkspaceId: ws.Id,
				Filename:    tc.filename,
				Content:     tc.content,
			})
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	list, err := h.document.GetAll(h.ctx, h.owner, ws.Id)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDocumentService_ReprocessRunsAgain(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()
	doc := h.upload(ws.Id, "handbook.txt", handbook)
	h.waitDocument(doc.Id, entity.StatusReady)

	before, err := h.document.Status(h.ctx, h.owner, doc.Id)
	require.NoError(t, err)

	_, err = h.document.Reprocess(h.ctx, h.owner, doc.Id)
	require.NoError(t, err)
	h.waitDocument(doc.Id, entity.StatusReady)

	after, err := h.document.Status(h.ctx, h.owner, doc.Id)
	require.NoError(t, err)
	assert.Greater(t, after.Version, before.Version)

	count, err := h.index.Count(h.ctx, ws.Id)
	require.NoError(t, err)
	got, err := h.document.Show(h.ctx, h.owner, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(got.VectorCount), count)
}

func TestDocumentService_DeleteRemovesVectors(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()
	keep := h.upload(ws.Id, "keep.txt", "Travel expenses are reimbursed within thirty days of submission.")
	drop := h.upload(ws.Id, "drop.txt", handbook)
	h.waitDocument(keep.Id, entity.StatusReady)
	h.waitDocument(drop.Id, entity.StatusReady)

	require.NoError(t, h.document.Delete(h.ctx, h.owner, drop.Id))

	_, err := h.document.Show(h.ctx, h.owner, drop.Id)
	assert.True(t, errors.Is(err, apperror.ErrDocumentNotFound))

	res, err := h.workspace.Search(h.ctx, h.owner, ws.Id, handbook)
	require.NoError(t, err)
	for _, p := range res.Passages {
		assert.NotEqual(t, drop.Id, p.DocumentId)
	}

	kept, err := h.document.Show(h.ctx, h.owner, keep.Id)
	require.NoError(t, err)
	count, err := h.index.Count(h.ctx, ws.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(kept.VectorCount), count)

	err = h.document.Delete(h.ctx, h.owner, drop.Id)
	assert.True(t, errors.Is(err, apperror.ErrDocumentNotFound))
}

func TestDocumentService_OtherOwnerSeesNothing(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()
	doc := h.upload(ws.Id, "handbook.txt", handbook)
	stranger := uuid.New()

	_, err := h.document.Show(h.ctx, stranger, doc.Id)
	assert.True(t, errors.Is(err, apperror.ErrDocumentNotFound))

	_, err = h.document.GetAll(h.ctx, stranger, ws.Id)
	assert.True(t, errors.Is(err, apperror.ErrWorkspaceNotFound))

	_, err = h.document.Upload(h.ctx, stranger, &dto.UploadDocumentRequest{
		WorkspaceId: ws.Id,
		Filename:    "x.txt",
		Content:     []byte(handbook),
	})
	assert.True(t, errors.Is(err, apperror.ErrWorkspaceNotFound))

	h.waitDocument(doc.Id, entity.StatusReady)
}
