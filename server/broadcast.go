package server

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event is a change applied on some server instance, relayed so every
// instance can notify its own connected editors.
type Event struct {
	Instance string          `json:"instance"`
	Doc      string          `json:"doc"`
	Author   string          `json:"author,omitempty"`
	Change   json.RawMessage `json:"change"`
}

// Broadcaster relays applied changes between server instances.
type Broadcaster interface {
	// Publish announces a locally applied change.
	Publish(ctx context.Context, ev Event) error
	// Events yields changes applied on other instances.
	Events() <-chan Event
	Close() error
}

// NopBroadcaster is the single-instance Broadcaster: publishes go nowhere
// and no remote events arrive.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(ctx context.Context, ev Event) error { return nil }
func (NopBroadcaster) Events() <-chan Event                        { return nil }
func (NopBroadcaster) Close() error                                { return nil }

const broadcastChannel = "richdoc:changes"

// RedisBroadcaster relays events over a Redis pub/sub channel. Each
// instance tags its events with a random ID and drops its own echoes.
type RedisBroadcaster struct {
	client   *redis.Client
	instance string
	pubsub   *redis.PubSub
	events   chan Event
}

func NewRedisBroadcaster(ctx context.Context, client *redis.Client) (*RedisBroadcaster, error) {
	pubsub := client.Subscribe(ctx, broadcastChannel)
	// Force the subscription to be established before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}
	b := &RedisBroadcaster{
		client:   client,
		instance: uuid.NewString(),
		pubsub:   pubsub,
		events:   make(chan Event, 64),
	}
	go b.receiveLoop()
	return b, nil
}

func (b *RedisBroadcaster) Publish(ctx context.Context, ev Event) error {
	ev.Instance = b.instance
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, broadcastChannel, data).Err()
}

func (b *RedisBroadcaster) Events() <-chan Event {
	return b.events
}

func (b *RedisBroadcaster) receiveLoop() {
	defer close(b.events)
	for msg := range b.pubsub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Printf("broadcast: bad payload: %v", err)
			continue
		}
		if ev.Instance == b.instance {
			continue
		}
		b.events <- ev
	}
}

func (b *RedisBroadcaster) Close() error {
	return b.pubsub.Close()
}
