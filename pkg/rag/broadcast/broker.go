package broadcast

import (
	"context"
	"errors"
	"sync"

	"docrag-be/internal/pkg/logger"

	"github.com/google/uuid"
)

// ErrSlowSubscriber closes a subscription whose buffer overflowed. The
// observer should subscribe again to get a fresh snapshot.
var ErrSlowSubscriber = errors.New("subscriber fell behind and was dropped")

// SnapshotLoader returns the current status of everything a topic covers.
type SnapshotLoader func(ctx context.Context, topic string) ([]StatusEvent, error)

// Relay carries events between instances.
type Relay interface {
	Publish(ctx context.Context, ev StatusEvent) error
	Run(ctx context.Context, deliver func(StatusEvent)) error
}

// Broker fans status events out to topic subscribers. Each subscriber gets
// the snapshot first, then only events newer than what it has seen for each
// entity, so no observer ever sees a status regress.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}

	buffer int
	relay  Relay
	log    logger.ILogger
}

func NewBroker(buffer int, relay Relay, log logger.ILogger) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		relay:  relay,
		log:    log,
	}
}

// Subscribe registers before loading the snapshot so that nothing published
// in between is lost; such events are held back until the snapshot is out.
func (b *Broker) Subscribe(ctx context.Context, topic string, load SnapshotLoader) (*Subscription, error) {
	sub := &Subscription{
		topic:    topic,
		broker:   b,
		ch:       make(chan StatusEvent, b.buffer),
		lastSeen: make(map[uuid.UUID]int64),
	}

	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*Subscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	b.mu.Unlock()

	snapshot, err := load(ctx, topic)
	if err != nil {
		b.remove(sub)
		return nil, err
	}
	if !sub.start(snapshot) {
		b.remove(sub)
		b.log.Warn("Broadcast", "Subscriber dropped during snapshot", map[string]interface{}{"topic": topic})
	}
	return sub, nil
}

// Publish delivers locally and forwards to the relay.
func (b *Broker) Publish(ctx context.Context, ev StatusEvent) {
	ev.Snapshot = false
	b.Deliver(ev)

	if b.relay != nil {
		if err := b.relay.Publish(ctx, ev); err != nil {
			b.log.Warn("Broadcast", "Relay publish failed", map[string]interface{}{
				"entity_id": ev.EntityId,
				"error":     err.Error(),
			})
		}
	}
}

// Deliver fans an event out to local subscribers only.
func (b *Broker) Deliver(ev StatusEvent) {
	var dropped []*Subscription

	b.mu.RLock()
	for _, topic := range topicsFor(ev) {
		for sub := range b.topics[topic] {
			if !sub.offer(ev) {
				dropped = append(dropped, sub)
			}
		}
	}
	b.mu.RUnlock()

	for _, sub := range dropped {
		b.remove(sub)
		b.log.Warn("Broadcast", "Dropped slow subscriber", map[string]interface{}{"topic": sub.topic})
	}
}

// RunRelay feeds events from other instances into local subscribers until
// ctx ends. A relay failure degrades to local delivery and is never returned.
func (b *Broker) RunRelay(ctx context.Context) error {
	if b.relay != nil {
		err := b.relay.Run(ctx, b.Deliver)
		if err != nil && ctx.Err() == nil {
			b.log.Error("Broadcast", "Status relay stopped, serving local delivery only", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	<-ctx.Done()
	return nil
}

func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	if subs, ok := b.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	b.mu.Unlock()
	sub.close(ErrSlowSubscriber)
}

// Subscription is one observer of a topic. C is closed when the
// subscription ends; Err tells why.
type Subscription struct {
	topic  string
	broker *Broker
	ch     chan StatusEvent

	mu       sync.Mutex
	started  bool
	pending  []StatusEvent
	lastSeen map[uuid.UUID]int64
	closed   bool
	err      error
}

func (s *Subscription) C() <-chan StatusEvent {
	return s.ch
}

func (s *Subscription) Topic() string {
	return s.topic
}

// Err is nil after Close and ErrSlowSubscriber after an overflow.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) Close() {
	s.broker.mu.Lock()
	if subs, ok := s.broker.topics[s.topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.broker.topics, s.topic)
		}
	}
	s.broker.mu.Unlock()
	s.close(nil)
}

func (s *Subscription) close(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = reason
	close(s.ch)
}

func (s *Subscription) start(snapshot []StatusEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}

	for _, ev := range snapshot {
		ev.Snapshot = true
		if !s.sendLocked(ev) {
			return false
		}
	}
	for _, ev := range s.pending {
		if !s.sendLocked(ev) {
			return false
		}
	}
	s.pending = nil
	s.started = true
	return true
}

// offer returns false when the subscriber must be dropped.
func (s *Subscription) offer(ev StatusEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	if !s.started {
		if len(s.pending) >= cap(s.ch) {
			return false
		}
		s.pending = append(s.pending, ev)
		return true
	}
	return s.sendLocked(ev)
}

func (s *Subscription) sendLocked(ev StatusEvent) bool {
	if seen, ok := s.lastSeen[ev.EntityId]; ok && ev.Version <= seen {
		return true
	}
	select {
	case s.ch <- ev:
		s.lastSeen[ev.EntityId] = ev.Version
		return true
	default:
		return false
	}
}
