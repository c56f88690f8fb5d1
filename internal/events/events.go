// Package events publishes task value transitions to a message bus so
// other processes can react without polling the API.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nhle/ambrose/internal/model"
)

// TaskChanged describes one task value transition.
type TaskChanged struct {
	TaskID    string         `json:"task_id"`
	AccountID string         `json:"account_id"`
	Kind      model.TaskKind `json:"kind"`
	Name      string         `json:"name"`
	Value     string         `json:"value"`
	PrevValue string         `json:"prev_value"`
	Source    string         `json:"source"`
	At        time.Time      `json:"at"`
}

// NewTaskChanged builds the event for a task after SetValue reported a
// change. source is "refresh" or "webhook".
func NewTaskChanged(t model.Task, source string, at time.Time) TaskChanged {
	return TaskChanged{
		TaskID:    t.ID,
		AccountID: t.AccountID,
		Kind:      t.Kind,
		Name:      t.Name(),
		Value:     t.Value,
		PrevValue: t.PrevValue,
		Source:    source,
		At:        at.UTC(),
	}
}

// Publisher sends task events.
type Publisher interface {
	Publish(ctx context.Context, event TaskChanged) error
	Close() error
}

// Bus is a Publisher whose events can also be consumed.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context) (<-chan TaskChanged, func(), error)
}

// Supported backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// New creates the publisher selected by cfg.
func New(cfg model.EventsConfig) (Bus, error) {
	subject := cfg.Subject
	if subject == "" {
		subject = "ambrose.tasks"
	}
	switch strings.ToLower(cfg.Backend) {
	case "", BackendNone:
		return Nop{}, nil
	case BackendMemory:
		return NewMemoryBus(), nil
	case BackendRedis:
		return NewRedisBus(cfg.URL, subject)
	case BackendNATS:
		return NewNATSBus(cfg.URL, subject)
	}
	return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, TaskChanged) error { return nil }
func (Nop) Close() error { return nil }

func (Nop) Subscribe(context.Context) (<-chan TaskChanged, func(), error) {
	return nil, nil, errors.New("events disabled")
}

// MemoryBus delivers events to in-process subscribers. Slow subscribers
// miss events rather than block publishers.
type MemoryBus struct {
	mu        sync.RWMutex
	subs      []chan TaskChanged
	closed    bool
	closeOnce sync.Once
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(_ context.Context, event TaskChanged) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("bus closed")
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context) (<-chan TaskChanged, func(), error) {
	ch := make(chan TaskChanged, 32)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, errors.New("bus closed")
	}
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, candidate := range b.subs {
				if candidate == ch {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
	return ch, unsub, nil
}

func (b *MemoryBus) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.closed = true
		for _, ch := range b.subs {
			close(ch)
		}
		b.subs = nil
	})
	return nil
}

func decode(raw []byte) (TaskChanged, error) {
	var ev TaskChanged
	if err := json.Unmarshal(raw, &ev); err != nil {
		return TaskChanged{}, err
	}
	if ev.TaskID == "" {
		return TaskChanged{}, errors.New("event without task id")
	}
	return ev, nil
}
