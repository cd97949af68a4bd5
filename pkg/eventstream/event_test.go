package eventstream_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/storage"
)

func TestEventstream(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Eventstream Suite")
}

var _ = Describe("EntryEvent", func() {
	It("marshals with the expected top-level keys", func() {
		event := eventstream.NewEntryEvent(eventstream.EventTypeEntryCaptured, storage.Entry{
			ID:        3,
			App:       "Code",
			Title:     "main.go",
			Text:      "func main",
			Timestamp: 1735689600,
			Embedding: []float32{1, 2, 3},
		})

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(payload, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKey("schema_version"))
		Expect(decoded).To(HaveKey("event_type"))
		Expect(decoded).To(HaveKey("event_id"))
		Expect(decoded).To(HaveKey("emitted_at"))
		Expect(decoded).To(HaveKey("entry"))
		Expect(decoded["event_type"]).To(Equal("recall.entry.captured"))

		entry := decoded["entry"].(map[string]any)
		Expect(entry["timestamp"]).To(BeNumerically("==", 1735689600))
		Expect(entry).NotTo(HaveKey("embedding"))
	})

	It("stamps a unique uuid per event", func() {
		a := eventstream.NewEntryEvent(eventstream.EventTypeEntryRevised, storage.Entry{})
		b := eventstream.NewEntryEvent(eventstream.EventTypeEntryRevised, storage.Entry{})

		_, err := uuid.Parse(a.EventID)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
	})

	It("does not carry the caller's embedding", func() {
		e := storage.Entry{Embedding: []float32{1}}
		event := eventstream.NewEntryEvent(eventstream.EventTypeEntryCaptured, e)
		Expect(event.Entry.Embedding).To(BeNil())
		Expect(e.Embedding).To(HaveLen(1))
	})
})
