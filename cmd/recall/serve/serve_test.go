package servecmder

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/logger"
)

func TestServe(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Serve Command Suite")
}

type fakeTuner struct {
	mu        sync.Mutex
	interval  time.Duration
	threshold float64
}

func (f *fakeTuner) SetInterval(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interval = d
}

func (f *fakeTuner) SetThreshold(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = t
}

var _ = Describe("NewServeCmd", func() {
	It("registers the capture flags from the shared registry", func() {
		cmd := NewServeCmd()
		Expect(cmd.Use).To(Equal("serve"))

		for _, name := range []string{"listen", "sqlite", "interval", "threshold", "vision", "brokers", "logs"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
		Expect(cmd.Flags().Lookup("interval").DefValue).To(Equal("3s"))
	})

	It("rejects arguments", func() {
		cmd := NewServeCmd()
		Expect(cmd.Args(cmd, []string{"extra"})).To(HaveOccurred())
	})
})

var _ = Describe("applyCaptureSettings", func() {
	var (
		v     *viper.Viper
		tuner *fakeTuner
	)

	BeforeEach(func() {
		v = viper.New()
		tuner = &fakeTuner{}
	})

	It("applies a valid interval and threshold", func() {
		v.Set("capture.interval", "7s")
		v.Set("capture.similarity_threshold", 0.8)

		applyCaptureSettings(v, tuner, logger.Nop())
		Expect(tuner.interval).To(Equal(7 * time.Second))
		Expect(tuner.threshold).To(Equal(0.8))
	})

	It("keeps the current values when the new ones are invalid", func() {
		v.Set("capture.interval", "0s")
		v.Set("capture.similarity_threshold", 1.5)

		applyCaptureSettings(v, tuner, logger.Nop())
		Expect(tuner.interval).To(BeZero())
		Expect(tuner.threshold).To(BeZero())
	})
})

var _ = Describe("advertisedURL", func() {
	It("maps wildcard listeners to localhost", func() {
		Expect(advertisedURL(&net.TCPAddr{IP: net.IPv6unspecified, Port: 8082})).To(Equal("http://localhost:8082"))
		Expect(advertisedURL(&net.TCPAddr{IP: net.IPv4zero, Port: 9000})).To(Equal("http://localhost:9000"))
	})

	It("keeps concrete hosts", func() {
		Expect(advertisedURL(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234})).To(Equal("http://127.0.0.1:1234"))
	})
})

var _ = Describe("databaseLabel", func() {
	paths := &dotdir.Paths{Database: "/data/.recall/recall.db"}

	It("uses the default SQLite path", func() {
		Expect(databaseLabel(viper.New(), paths)).To(Equal("/data/.recall/recall.db"))
	})

	It("names other drivers", func() {
		v := viper.New()
		v.Set("storage.driver", "postgres")
		Expect(databaseLabel(v, paths)).To(Equal("postgres"))
	})
})

var _ = Describe("followLog", func() {
	It("fails when there is no log yet", func() {
		err := followLog(context.Background(), filepath.Join(GinkgoT().TempDir(), "recall.log"), gbytes.NewBuffer())
		Expect(err).To(MatchError(ContainSubstring("no serve logs")))
	})

	It("streams lines appended after it starts", func() {
		path := filepath.Join(GinkgoT().TempDir(), "recall.log")
		Expect(os.WriteFile(path, []byte("old line\n"), 0o600)).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := gbytes.NewBuffer()
		done := make(chan error, 1)
		go func() { done <- followLog(ctx, path, out) }()

		Eventually(func(g Gomega) {
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
			g.Expect(err).NotTo(HaveOccurred())
			_, err = f.WriteString("new line\n")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(f.Close()).To(Succeed())
			g.Expect(string(out.Contents())).To(ContainSubstring("new line"))
		}).WithTimeout(5 * time.Second).WithPolling(50 * time.Millisecond).Should(Succeed())

		Expect(string(out.Contents())).NotTo(ContainSubstring("old line"))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})
