package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

// NATSBus publishes events on a NATS subject.
type NATSBus struct {
	conn    *nats.Conn
	subject string
}

// NewNATSBus connects to the NATS server at address.
func NewNATSBus(address, subject string) (*NATSBus, error) {
	if address == "" {
		address = nats.DefaultURL
	}
	conn, err := nats.Connect(address, nats.Name("ambrose"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBus{conn: conn, subject: subject}, nil
}

func (b *NATSBus) Publish(ctx context.Context, event TaskChanged) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.conn.Publish(b.subject, raw)
}

func (b *NATSBus) Subscribe(ctx context.Context) (<-chan TaskChanged, func(), error) {
	out := make(chan TaskChanged, 32)
	var mu sync.Mutex
	stopped := false

	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		ev, err := decode(msg.Data)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		select {
		case out <- ev:
		default:
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", b.subject, err)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			stopped = true
			close(out)
			mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()
	return out, unsubscribe, nil
}

func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}
