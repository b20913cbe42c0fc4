package service

import (
	"testing"
	"time"

	"docrag-be/internal/entity"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/rag/broadcast"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusService_WorkspaceSnapshotThenDeltas(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()

	sub, err := h.status.Subscribe(h.ctx, h.owner, &ws.Id, nil)
	require.NoError(t, err)
	defer sub.Close()

	first := <-sub.C()
	assert.True(t, first.Snapshot)
	assert.Equal(t, broadcast.KindWorkspace, first.Kind)
	assert.Equal(t, string(entity.ProvisioningStatusReady), first.Status)

	doc := h.upload(ws.Id, "handbook.txt", handbook)

	var last int64
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.C():
			if ev.EntityId != doc.Id {
				continue
			}
			assert.False(t, ev.Snapshot)
			assert.Greater(t, ev.Version, last, "document status went backwards")
			last = ev.Version
			if ev.Status == string(entity.StatusReady) {
				return
			}
		case <-deadline:
			t.Fatal("document never reported ready")
		}
	}
}

func TestStatusService_DocumentSnapshot(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()
	doc := h.upload(ws.Id, "handbook.txt", handbook)
	h.waitDocument(doc.Id, entity.StatusReady)

	sub, err := h.status.Subscribe(h.ctx, h.owner, nil, &doc.Id)
	require.NoError(t, err)
	defer sub.Close()

	ev := <-sub.C()
	assert.True(t, ev.Snapshot)
	assert.Equal(t, doc.Id, ev.EntityId)
	assert.Equal(t, string(entity.StatusReady), ev.Status)
}

func TestStatusService_SubscribeChecks(t *testing.T) {
	h := newHarness(t)
	ws := h.readyWorkspace()
	other := uuid.New()

	_, err := h.status.Subscribe(h.ctx, h.owner, nil, nil)
	assert.Equal(t, apperror.KindInput, apperror.KindOf(err))

	_, err = h.status.Subscribe(h.ctx, h.owner, &ws.Id, &other)
	assert.Equal(t, apperror.KindInput, apperror.KindOf(err))

	_, err = h.status.Subscribe(h.ctx, uuid.New(), &ws.Id, nil)
	assert.ErrorIs(t, err, apperror.ErrWorkspaceNotFound)

	assert.Zero(t, h.broker.SubscriberCount(broadcast.WorkspaceTopic(ws.Id)))
}
