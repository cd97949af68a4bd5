package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeEntryCaptured is emitted after the capture loop commits an entry.
	EventTypeEntryCaptured = "recall.entry.captured"

	// EventTypeEntryRevised is emitted after reprocessing rewrites an entry.
	EventTypeEntryRevised = "recall.entry.revised"
)

// EntryEvent is a transport-neutral event payload for a stored entry.
// Embeddings are not carried.
type EntryEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	Entry         storage.Entry `json:"entry"`
}

// NewEntryEvent stamps e with a fresh id and the current time.
func NewEntryEvent(eventType string, e storage.Entry) *EntryEvent {
	e.Embedding = nil
	return &EntryEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Entry:         e,
	}
}
