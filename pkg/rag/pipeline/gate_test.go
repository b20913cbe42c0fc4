package pipeline

import (
	"context"
	"testing"
	"time"

	"docrag-be/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_CloseDocumentCancelsAndWaits(t *testing.T) {
	g := NewGate()
	ws, doc := uuid.New(), uuid.New()

	wctx, release, err := g.Enter(context.Background(), ws, doc)
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- g.CloseDocument(context.Background(), doc) }()

	select {
	case <-wctx.Done():
	case <-time.After(time.Second):
		t.Fatal("work was not cancelled")
	}
	assert.ErrorIs(t, context.Cause(wctx), ErrDeleted)

	select {
	case <-closed:
		t.Fatal("close returned before the work released")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	require.NoError(t, <-closed)

	_, _, err = g.Enter(context.Background(), ws, doc)
	assert.ErrorIs(t, err, apperror.ErrDocumentBusy)

	g.ForgetDocument(doc)
	_, release, err = g.Enter(context.Background(), ws, doc)
	require.NoError(t, err)
	release()
}

func TestGate_CloseWorkspaceLeavesOtherWorkspacesAlone(t *testing.T) {
	g := NewGate()
	wsA, wsB := uuid.New(), uuid.New()

	ctxA, releaseA, err := g.Enter(context.Background(), wsA, uuid.New())
	require.NoError(t, err)
	ctxB, releaseB, err := g.Enter(context.Background(), wsB, uuid.New())
	require.NoError(t, err)
	defer releaseB()

	go func() {
		<-ctxA.Done()
		releaseA()
	}()
	require.NoError(t, g.CloseWorkspace(context.Background(), wsA))

	assert.NoError(t, ctxB.Err())
	assert.True(t, g.Closed(wsA, uuid.New()))
	assert.False(t, g.Closed(wsB, uuid.New()))

	_, _, err = g.Enter(context.Background(), wsA, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrWorkspaceDeleting)
}

func TestGate_CloseHonoursContext(t *testing.T) {
	g := NewGate()
	doc := uuid.New()
	_, release, err := g.Enter(context.Background(), uuid.New(), doc)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.CloseDocument(ctx, doc), context.DeadlineExceeded)
}
