package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"docrag-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docEvent(ws, doc uuid.UUID, status string, version int64) StatusEvent {
	return StatusEvent{Kind: KindDocument, EntityId: doc, WorkspaceId: ws, Status: status, Version: version, OccurredAt: time.Now()}
}

func staticSnapshot(events ...StatusEvent) SnapshotLoader {
	return func(ctx context.Context, topic string) ([]StatusEvent, error) {
		return events, nil
	}
}

func drain(sub *Subscription) []StatusEvent {
	var out []StatusEvent
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBroker_SnapshotThenDeltas(t *testing.T) {
	b := NewBroker(16, nil, logger.NewNopLogger())
	ws, doc := uuid.New(), uuid.New()

	sub, err := b.Subscribe(context.Background(), DocumentTopic(doc), staticSnapshot(docEvent(ws, doc, "parsing", 1)))
	require.NoError(t, err)

	b.Publish(context.Background(), docEvent(ws, doc, "chunking", 2))
	b.Publish(context.Background(), docEvent(ws, doc, "embedding", 3))

	got := drain(sub)
	require.Len(t, got, 3)
	assert.True(t, got[0].Snapshot)
	assert.Equal(t, "parsing", got[0].Status)
	assert.Equal(t, []string{"chunking", "embedding"}, []string{got[1].Status, got[2].Status})
	assert.False(t, got[1].Snapshot)
}

func TestBroker_EventsDuringSnapshotLoadAreHeldAndFiltered(t *testing.T) {
	b := NewBroker(16, nil, logger.NewNopLogger())
	ws, doc := uuid.New(), uuid.New()

	loader := func(ctx context.Context, topic string) ([]StatusEvent, error) {
		// published after registration but before the snapshot is delivered
		b.Publish(ctx, docEvent(ws, doc, "chunking", 2))
		b.Publish(ctx, docEvent(ws, doc, "embedding", 3))
		return []StatusEvent{docEvent(ws, doc, "chunking", 2)}, nil
	}

	sub, err := b.Subscribe(context.Background(), DocumentTopic(doc), loader)
	require.NoError(t, err)

	got := drain(sub)
	require.Len(t, got, 2)
	assert.Equal(t, "chunking", got[0].Status)
	assert.True(t, got[0].Snapshot)
	assert.Equal(t, "embedding", got[1].Status)
}

func TestBroker_StaleEventsNeverReachSubscribers(t *testing.T) {
	b := NewBroker(16, nil, logger.NewNopLogger())
	ws, doc := uuid.New(), uuid.New()

	sub, err := b.Subscribe(context.Background(), WorkspaceTopic(ws), staticSnapshot())
	require.NoError(t, err)

	b.Publish(context.Background(), docEvent(ws, doc, "embedding", 3))
	b.Publish(context.Background(), docEvent(ws, doc, "chunking", 2))
	b.Publish(context.Background(), docEvent(ws, doc, "indexing", 4))

	got := drain(sub)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Version)
	assert.Equal(t, int64(4), got[1].Version)
}

func TestBroker_WorkspaceTopicSeesDocumentsAndWorkspace(t *testing.T) {
	b := NewBroker(16, nil, logger.NewNopLogger())
	ws, other := uuid.New(), uuid.New()

	sub, err := b.Subscribe(context.Background(), WorkspaceTopic(ws), staticSnapshot())
	require.NoError(t, err)

	b.Publish(context.Background(), docEvent(ws, uuid.New(), "parsing", 1))
	b.Publish(context.Background(), docEvent(other, uuid.New(), "parsing", 1))
	b.Publish(context.Background(), StatusEvent{Kind: KindWorkspace, EntityId: ws, WorkspaceId: ws, Status: "deleting", Version: 5})

	got := drain(sub)
	require.Len(t, got, 2)
	assert.Equal(t, KindDocument, got[0].Kind)
	assert.Equal(t, KindWorkspace, got[1].Kind)
}

func TestBroker_SlowSubscriberIsDropped(t *testing.T) {
	b := NewBroker(2, nil, logger.NewNopLogger())
	ws, doc := uuid.New(), uuid.New()

	slow, err := b.Subscribe(context.Background(), DocumentTopic(doc), staticSnapshot())
	require.NoError(t, err)
	healthy, err := b.Subscribe(context.Background(), WorkspaceTopic(ws), staticSnapshot())
	require.NoError(t, err)

	for v := int64(1); v <= 3; v++ {
		b.Publish(context.Background(), docEvent(ws, doc, "parsing", v))
		if v < 3 {
			<-healthy.C()
		}
	}

	got := drain(slow)
	assert.Len(t, got, 2)
	assert.ErrorIs(t, slow.Err(), ErrSlowSubscriber)
	assert.Equal(t, 0, b.SubscriberCount(DocumentTopic(doc)))

	ev, ok := <-healthy.C()
	require.True(t, ok)
	assert.Equal(t, int64(3), ev.Version)
	assert.NoError(t, healthy.Err())
}

func TestBroker_SnapshotErrorUnregisters(t *testing.T) {
	b := NewBroker(4, nil, logger.NewNopLogger())
	boom := errors.New("db down")

	_, err := b.Subscribe(context.Background(), "document:x", func(ctx context.Context, topic string) ([]StatusEvent, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, b.SubscriberCount("document:x"))
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	b := NewBroker(4, nil, logger.NewNopLogger())
	sub, err := b.Subscribe(context.Background(), "workspace:y", staticSnapshot())
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.NoError(t, sub.Err())
}

type fakeRelay struct {
	published []StatusEvent
}

func (f *fakeRelay) Publish(ctx context.Context, ev StatusEvent) error {
	f.published = append(f.published, ev)
	return nil
}

func (f *fakeRelay) Run(ctx context.Context, deliver func(StatusEvent)) error {
	<-ctx.Done()
	return nil
}

func TestBroker_PublishForwardsToRelayButDeliverDoesNot(t *testing.T) {
	relay := &fakeRelay{}
	b := NewBroker(4, relay, logger.NewNopLogger())
	ws, doc := uuid.New(), uuid.New()

	b.Publish(context.Background(), docEvent(ws, doc, "parsing", 1))
	b.Deliver(docEvent(ws, doc, "chunking", 2))

	require.Len(t, relay.published, 1)
	assert.Equal(t, "parsing", relay.published[0].Status)
}

type brokenRelay struct{}

func (brokenRelay) Publish(ctx context.Context, ev StatusEvent) error {
	return errors.New("nats: no responders")
}

func (brokenRelay) Run(ctx context.Context, deliver func(StatusEvent)) error {
	return errors.New("nats: connection closed")
}

func TestBroker_RelayFailureKeepsLocalDelivery(t *testing.T) {
	b := NewBroker(4, brokenRelay{}, logger.NewNopLogger())
	ws, doc := uuid.New(), uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.RunRelay(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("relay failure ended RunRelay early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	sub, err := b.Subscribe(context.Background(), DocumentTopic(doc), staticSnapshot())
	require.NoError(t, err)
	b.Publish(context.Background(), docEvent(ws, doc, "parsing", 1))
	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, "parsing", got[0].Status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunRelay did not stop with its context")
	}
}
