package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/recall/pkg/eventstream"
)

// MockPublisher records published events.
type MockPublisher struct {
	Err error

	mu     sync.Mutex
	events []*eventstream.EntryEvent
}

func (p *MockPublisher) Publish(_ context.Context, event *eventstream.EntryEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return p.Err
}

func (p *MockPublisher) Events() []*eventstream.EntryEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.EntryEvent(nil), p.events...)
}

func (p *MockPublisher) Close() error {
	return nil
}
