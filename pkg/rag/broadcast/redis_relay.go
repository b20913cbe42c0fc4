package broadcast

import (
	"context"
	"encoding/json"

	"docrag-be/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const relayChannel = "docrag:status_events"

type relayEnvelope struct {
	Origin string      `json:"origin"`
	Event  StatusEvent `json:"event"`
}

// RedisRelay shares status events between instances over one Redis pub/sub
// channel. Every instance hears every event and drops its own.
type RedisRelay struct {
	rdb      *redis.Client
	instance string
	log      logger.ILogger
}

func NewRedisRelay(rdb *redis.Client, instanceID string, log logger.ILogger) *RedisRelay {
	return &RedisRelay{rdb: rdb, instance: instanceID, log: log}
}

func (r *RedisRelay) Publish(ctx context.Context, ev StatusEvent) error {
	payload, err := json.Marshal(relayEnvelope{Origin: r.instance, Event: ev})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, relayChannel, payload).Err()
}

func (r *RedisRelay) Run(ctx context.Context, deliver func(StatusEvent)) error {
	pubsub := r.rdb.Subscribe(ctx, relayChannel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("Broadcast", "Relay message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if env.Origin == r.instance {
				continue
			}
			deliver(env.Event)
		}
	}
}
