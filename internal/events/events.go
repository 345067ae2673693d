// Package events announces video lifecycle changes to downstream consumers.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	VideoUploaded = "video.uploaded"
	VideoUpdated  = "video.updated"
	VideoDeleted  = "video.deleted"
	VideoViewed   = "video.viewed"
)

// Event is the message body published for each lifecycle change.
type Event struct {
	Type       string         `json:"type"`
	VideoID    string         `json:"videoId"`
	OwnerID    string         `json:"ownerId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Memory keeps published events in process. Handy for tests and local runs
// without a broker.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Types lists the event types in publish order.
func (m *Memory) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, event := range m.events {
		out = append(out, event.Type)
	}
	return out
}
