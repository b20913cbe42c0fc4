package nats

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"docrag-be/pkg/apperror"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// WorkQueue is a watermill Publisher/Subscriber backed by a JetStream
// work-queue stream, so pipeline jobs survive restarts and are shared
// between instances.
type WorkQueue struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	stream  string
	ackWait time.Duration
	log     watermill.LoggerAdapter

	closeOnce sync.Once
	closing   chan struct{}
	subs      sync.WaitGroup
}

func NewWorkQueue(url, streamName string, subjects []string, ackWait time.Duration, log watermill.LoggerAdapter) (*WorkQueue, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  subjects,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}

	return &WorkQueue{
		nc:      nc,
		js:      js,
		stream:  streamName,
		ackWait: ackWait,
		log:     log,
		closing: make(chan struct{}),
	}, nil
}

func (q *WorkQueue) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		out := nats.NewMsg(topic)
		out.Data = msg.Payload
		out.Header.Set(nats.MsgIdHdr, msg.UUID)
		for k, v := range msg.Metadata {
			out.Header.Set(k, v)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := q.js.PublishMsg(ctx, out)
		cancel()
		if err != nil {
			return apperror.Wrap(apperror.ErrQueueUnavailable, err)
		}
	}
	return nil
}

// Subscribe creates (or reuses) one durable consumer per topic. The returned
// channel is closed when ctx is cancelled or the queue is closed.
func (q *WorkQueue) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       durableName(topic),
		FilterSubject: topic,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.ackWait,
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrQueueUnavailable, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan *message.Message)

	var mu sync.RWMutex
	closed := false

	cc, err := consumer.Consume(func(m jetstream.Msg) {
		mu.RLock()
		defer mu.RUnlock()
		if closed {
			_ = m.Nak()
			return
		}

		id := m.Headers().Get(nats.MsgIdHdr)
		if id == "" {
			id = watermill.NewUUID()
		}
		msg := message.NewMessage(id, m.Data())
		for k := range m.Headers() {
			if k != nats.MsgIdHdr {
				msg.Metadata.Set(k, m.Headers().Get(k))
			}
		}
		msg.SetContext(subCtx)

		select {
		case out <- msg:
		case <-subCtx.Done():
			_ = m.Nak()
			return
		}

		select {
		case <-msg.Acked():
			if err := m.Ack(); err != nil {
				q.log.Error("ack failed", err, watermill.LogFields{"topic": topic})
			}
		case <-msg.Nacked():
			_ = m.Nak()
		case <-subCtx.Done():
			_ = m.Nak()
		}
	})
	if err != nil {
		cancel()
		return nil, apperror.Wrap(apperror.ErrQueueUnavailable, err)
	}

	q.subs.Add(1)
	go func() {
		defer q.subs.Done()
		select {
		case <-subCtx.Done():
		case <-q.closing:
		}
		cancel()
		cc.Stop()

		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	return out, nil
}

func (q *WorkQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.closing)
		q.subs.Wait()
		q.nc.Close()
	})
	return nil
}

// durableName turns a dotted subject into a valid consumer name.
func durableName(topic string) string {
	return "worker_" + strings.NewReplacer(".", "_", "*", "all", ">", "rest").Replace(topic)
}
