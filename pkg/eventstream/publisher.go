package eventstream

import "context"

// Publisher publishes entry events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *EntryEvent) error
	Close() error
}
