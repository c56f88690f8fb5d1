package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes events on a Redis pub/sub channel.
type RedisBus struct {
	client  *redis.Client
	subject string
}

// NewRedisBus connects to the Redis server at address.
func NewRedisBus(address, subject string) (*RedisBus, error) {
	if address == "" {
		address = "redis://127.0.0.1:6379"
	}
	opts, err := redis.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisBus{client: redis.NewClient(opts), subject: subject}, nil
}

func (b *RedisBus) Publish(ctx context.Context, event TaskChanged) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.subject, raw).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan TaskChanged, func(), error) {
	pubSub := b.client.Subscribe(ctx, b.subject)
	if _, err := pubSub.Receive(ctx); err != nil {
		_ = pubSub.Close()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", b.subject, err)
	}

	rawCh := pubSub.Channel()
	out := make(chan TaskChanged, 32)
	stop := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = pubSub.Close()
			close(stop)
		})
	}

	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case msg, ok := <-rawCh:
				if !ok {
					return
				}
				ev, err := decode([]byte(msg.Payload))
				if err != nil {
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
	return out, unsubscribe, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
