// Package memory contains an in-memory event publisher for tests and
// development.
package memory

import (
	"context"
	"sync"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []scrape.Event
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event.
func (p *Publisher) Publish(_ context.Context, event scrape.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns the recorded events.
func (p *Publisher) Events() []scrape.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]scrape.Event, len(p.events))
	copy(out, p.events)
	return out
}
