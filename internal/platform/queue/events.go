package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"guideboard/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// EventBus publishes job change notifications on a single Redis channel.
type EventBus struct {
	rdb     *redis.Client
	channel string
}

func NewEventBus(rdb *redis.Client, channel string) *EventBus {
	return &EventBus{rdb: rdb, channel: channel}
}

func (b *EventBus) Channel() string { return b.channel }

func (b *EventBus) PublishJobEvent(ctx context.Context, ev model.JobEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("EventBus.PublishJobEvent marshal: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("EventBus.PublishJobEvent: %w", err)
	}
	return nil
}

// Subscribe opens a subscription on the event channel and waits for the
// server to confirm it, so no event published afterwards is missed.
func (b *EventBus) Subscribe(ctx context.Context) (*redis.PubSub, error) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("EventBus.Subscribe: %w", err)
	}
	return sub, nil
}

// DecodeJobEvent parses a payload produced by PublishJobEvent.
func DecodeJobEvent(payload string) (model.JobEvent, error) {
	var ev model.JobEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("decode job event: %w", err)
	}
	return ev, nil
}
