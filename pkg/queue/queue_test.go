package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docrag-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_LimitsConcurrency(t *testing.T) {
	pubSub := NewGoChannel(64, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var running, peak int32
	var wg sync.WaitGroup
	wg.Add(6)

	d := NewDispatcher(pubSub, "jobs", 2, logger.NewNopLogger())
	require.NoError(t, d.Start(ctx, func(ctx context.Context, payload []byte) {
		defer wg.Done()
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
	}))

	for i := 0; i < 6; i++ {
		require.NoError(t, PublishJSON(pubSub, "jobs", map[string]int{"n": i}))
	}

	wg.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))

	cancel()
	d.Wait()
}

func TestDispatcher_RecoversFromPanics(t *testing.T) {
	pubSub := NewGoChannel(8, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan string, 2)
	d := NewDispatcher(pubSub, "jobs", 1, logger.NewNopLogger())
	require.NoError(t, d.Start(ctx, func(ctx context.Context, payload []byte) {
		if string(payload) == `"boom"` {
			panic("boom")
		}
		handled <- string(payload)
	}))

	require.NoError(t, PublishJSON(pubSub, "jobs", "boom"))
	require.NoError(t, PublishJSON(pubSub, "jobs", "ok"))

	select {
	case got := <-handled:
		assert.Equal(t, `"ok"`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("second message was not handled")
	}
}
