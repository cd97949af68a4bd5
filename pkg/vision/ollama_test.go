package vision_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/extract"
	"github.com/papercomputeco/recall/pkg/vision"
)

func TestVision(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Vision Suite")
}

var _ = Describe("Downscale", func() {
	It("keeps small images", func() {
		img := image.NewRGBA(image.Rect(0, 0, 640, 480))
		Expect(vision.Downscale(img)).To(BeIdenticalTo(img))
	})

	It("bounds the long edge and keeps the aspect ratio", func() {
		out := vision.Downscale(image.NewRGBA(image.Rect(0, 0, 2048, 1024)))
		Expect(out.Bounds().Dx()).To(Equal(1024))
		Expect(out.Bounds().Dy()).To(Equal(512))
	})
})

var _ = Describe("Describer", func() {
	var (
		server   *httptest.Server
		received map[string]any
		status   int
		reply    string
	)

	BeforeEach(func() {
		received = nil
		status = http.StatusOK
		reply = `{"response":"  A terminal running tests  "}`
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/generate"))
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			w.WriteHeader(status)
			_, _ = w.Write([]byte(reply))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("sends a single non-streaming JPEG request", func() {
		d := vision.NewDescriber(vision.Config{BaseURL: server.URL})
		text, err := d.Describe(context.Background(), image.NewRGBA(image.Rect(0, 0, 1500, 900)))
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("A terminal running tests"))

		Expect(received["model"]).To(Equal(vision.DefaultModel))
		Expect(received["stream"]).To(BeFalse())
		Expect(received["prompt"]).To(ContainSubstring("Describe this screenshot"))

		images := received["images"].([]any)
		Expect(images).To(HaveLen(1))
		raw, err := base64.StdEncoding.DecodeString(images[0].(string))
		Expect(err).NotTo(HaveOccurred())
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Width).To(Equal(1024))
	})

	It("reports non-200 responses as unavailable", func() {
		status = http.StatusInternalServerError
		reply = `{"error":"model not loaded"}`
		d := vision.NewDescriber(vision.Config{BaseURL: server.URL})
		_, err := d.Describe(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
		Expect(err).To(MatchError(extract.ErrUnavailable))
	})

	It("rejects empty descriptions", func() {
		reply = `{"response":"   "}`
		d := vision.NewDescriber(vision.Config{BaseURL: server.URL})
		_, err := d.Describe(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
		Expect(err).To(HaveOccurred())
	})

	It("gives up after the timeout", func() {
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{"response":"late"}`))
		}))
		defer slow.Close()

		d := vision.NewDescriber(vision.Config{BaseURL: slow.URL, Timeout: 20 * time.Millisecond})
		_, err := d.Describe(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
		Expect(err).To(MatchError(extract.ErrUnavailable))
	})
})
