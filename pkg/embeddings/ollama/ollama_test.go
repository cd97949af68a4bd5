package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/embeddings/ollama"
	"github.com/papercomputeco/recall/pkg/vector"
)

func TestOllama(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ollama Embedder Suite")
}

var _ = Describe("Embedder", func() {
	var (
		server *httptest.Server
		inputs []any
		status int
	)

	BeforeEach(func() {
		inputs = nil
		status = http.StatusOK
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/embed"))

			var req map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			Expect(req["model"]).To(Equal(ollama.DefaultEmbeddingModel))
			inputs = append(inputs, req["input"])

			if status != http.StatusOK {
				w.WriteHeader(status)
				_, _ = w.Write([]byte("boom"))
				return
			}

			switch in := req["input"].(type) {
			case string:
				_, _ = w.Write([]byte(`{"embeddings":[[0.5,0.25]]}`))
			case []any:
				out := make([][]float32, len(in))
				for i := range in {
					out[i] = []float32{float32(i), 1}
				}
				Expect(json.NewEncoder(w).Encode(map[string]any{"embeddings": out})).To(Succeed())
			}
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("embeds a single text", func() {
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		v, err := e.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]float32{0.5, 0.25}))
		Expect(inputs).To(Equal([]any{"hello"}))
	})

	It("embeds a batch in one request", func() {
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		vs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
		Expect(err).NotTo(HaveOccurred())
		Expect(vs).To(HaveLen(3))
		Expect(vs[2]).To(Equal([]float32{2, 1}))
		Expect(inputs).To(HaveLen(1))
	})

	It("wraps server failures as embedding errors", func() {
		status = http.StatusInternalServerError
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Embed(context.Background(), "hello")
		Expect(err).To(MatchError(vector.ErrEmbedding))
		Expect(err.Error()).To(ContainSubstring("status 500"))
	})
})
