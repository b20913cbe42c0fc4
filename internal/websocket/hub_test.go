package websocket

import (
	"context"
	"testing"
	"time"

	"docrag-be/internal/pkg/logger"
	"docrag-be/pkg/rag/broadcast"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubscription(t *testing.T) *broadcast.Subscription {
	t.Helper()
	broker := broadcast.NewBroker(4, nil, logger.NewNopLogger())
	sub, err := broker.Subscribe(context.Background(), broadcast.WorkspaceTopic(uuid.New()),
		func(context.Context, string) ([]broadcast.StatusEvent, error) { return nil, nil })
	require.NoError(t, err)
	return sub
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &Client{Hub: hub, UserID: uuid.New(), sub: newSubscription(t), done: make(chan struct{})}
	require.True(t, hub.add(client))
	assert.Equal(t, 1, hub.Count())

	hub.remove(client)
	assert.Equal(t, 0, hub.Count())
	select {
	case <-client.done:
	case <-time.After(time.Second):
		t.Fatal("client was not released")
	}
}

func TestHub_ShutdownReleasesClients(t *testing.T) {
	hub := NewHub(logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := &Client{Hub: hub, UserID: uuid.New(), sub: newSubscription(t), done: make(chan struct{})}
	require.True(t, hub.add(client))

	cancel()
	<-stopped

	select {
	case <-client.done:
	default:
		t.Fatal("client was not released on shutdown")
	}
	assert.False(t, hub.add(&Client{Hub: hub, sub: newSubscription(t), done: make(chan struct{})}))
	hub.remove(client)
	assert.Equal(t, 0, hub.Count())
}

func TestCloseFrame(t *testing.T) {
	slow := closeFrame(broadcast.ErrSlowSubscriber)
	normal := closeFrame(nil)
	assert.Equal(t, []byte{0x03, 0xf5}, slow[:2])
	assert.Equal(t, []byte{0x03, 0xe8}, normal[:2])
}
