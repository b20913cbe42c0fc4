package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"docrag-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"golang.org/x/sync/semaphore"
)

// PubSub is satisfied by the in-process gochannel and by nats.WorkQueue.
type PubSub interface {
	message.Publisher
	message.Subscriber
}

func NewGoChannel(bufferSize int64, log watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: bufferSize},
		log,
	)
}

// PublishJSON marshals v into a single message on topic.
func PublishJSON(pub message.Publisher, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}
	return pub.Publish(topic, message.NewMessage(watermill.NewUUID(), payload))
}

// HandlerFunc processes one message payload. Failures are the handler's
// business; the message has already been acknowledged.
type HandlerFunc func(ctx context.Context, payload []byte)

// Dispatcher runs up to `workers` handlers concurrently for one topic. A
// message is acknowledged as soon as a worker slot is free, so redelivery
// after a crash is the job table's concern, not the broker's.
type Dispatcher struct {
	sub     message.Subscriber
	topic   string
	workers int64
	sem     *semaphore.Weighted
	log     logger.ILogger

	inflight sync.WaitGroup
	done     chan struct{}
}

func NewDispatcher(sub message.Subscriber, topic string, workers int, log logger.ILogger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		sub:     sub,
		topic:   topic,
		workers: int64(workers),
		sem:     semaphore.NewWeighted(int64(workers)),
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start subscribes synchronously and processes messages in the background
// until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context, handle HandlerFunc) error {
	messages, err := d.sub.Subscribe(ctx, d.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", d.topic, err)
	}
	go d.loop(ctx, messages, handle)
	return nil
}

func (d *Dispatcher) loop(ctx context.Context, messages <-chan *message.Message, handle HandlerFunc) {
	defer close(d.done)
	defer d.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := d.sem.Acquire(ctx, 1); err != nil {
				msg.Nack()
				return
			}
			msg.Ack()

			d.inflight.Add(1)
			go func(payload []byte) {
				defer d.inflight.Done()
				defer d.sem.Release(1)
				defer func() {
					if r := recover(); r != nil {
						d.log.Error("Queue", "Handler panicked", map[string]interface{}{
							"topic": d.topic,
							"panic": fmt.Sprint(r),
						})
					}
				}()
				handle(ctx, payload)
			}(msg.Payload)
		}
	}
}

// Wait blocks until the loop has stopped and every in-flight handler returned.
func (d *Dispatcher) Wait() {
	<-d.done
}
