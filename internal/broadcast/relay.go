package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const defaultChannel = "watchsync:broadcast"

// Frame is a serialized outbound message on its way to another instance.
type Frame struct {
	InstanceId string          `json:"instance_id"`
	Type       string          `json:"type"`
	Recipients []string        `json:"recipients"`
	Data       json.RawMessage `json:"data"`
}

// RedisRelay fans frames out to every instance over redis pub/sub.
// An instance ignores the frames it published itself.
type RedisRelay struct {
	rc         *redis.Client
	instanceId string
	channel    string
	logger     *slog.Logger
}

func NewRedisRelay(rc *redis.Client, instanceId string, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{
		rc:         rc,
		instanceId: instanceId,
		channel:    defaultChannel,
		logger:     logger,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, frame *Frame) error {
	frame.InstanceId = r.instanceId

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	if err := r.rc.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish frame: %w", err)
	}

	return nil
}

type Subscription struct {
	pubsub     *redis.PubSub
	instanceId string
	logger     *slog.Logger
}

// Subscribe returns once redis has confirmed the subscription.
func (r *RedisRelay) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := r.rc.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	return &Subscription{
		pubsub:     pubsub,
		instanceId: r.instanceId,
		logger:     r.logger,
	}, nil
}

// Run calls handler for every frame published by another instance until ctx is done.
func (s *Subscription) Run(ctx context.Context, handler func(*Frame)) {
	defer s.pubsub.Close()

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var frame Frame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				s.logger.WarnContext(ctx, "failed to unmarshal frame", "error", err)
				continue
			}

			if frame.InstanceId == s.instanceId {
				continue
			}

			handler(&frame)
		}
	}
}
