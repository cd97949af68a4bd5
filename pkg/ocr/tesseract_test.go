package ocr_test

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/extract"
	"github.com/papercomputeco/recall/pkg/ocr"
)

func TestOCR(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "OCR Suite")
}

var _ = Describe("Tesseract", func() {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))

	It("reports unavailability when the binary is missing", func() {
		t := ocr.NewTesseract(ocr.Config{Command: "recall-no-such-tesseract"})
		_, err := t.Recognize(context.Background(), img)
		Expect(err).To(MatchError(extract.ErrUnavailable))
	})

	Context("with a stand-in executable", func() {
		var script string

		BeforeEach(func() {
			if runtime.GOOS == "windows" {
				Skip("shell script stand-in requires a POSIX shell")
			}
			dir := GinkgoT().TempDir()
			script = filepath.Join(dir, "fake-tesseract")
			body := "#!/bin/sh\nif [ \"$2\" != stdout ] || [ \"$4\" != deu ]; then exit 3; fi\necho \"Terminal ready\"\n"
			Expect(os.WriteFile(script, []byte(body), 0o755)).To(Succeed())
		})

		It("returns stdout of the recognizer", func() {
			t := ocr.NewTesseract(ocr.Config{Command: script, Language: "deu"})
			text, err := t.Recognize(context.Background(), img)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Terminal ready\n"))
		})

		It("surfaces non-zero exits", func() {
			t := ocr.NewTesseract(ocr.Config{Command: script, Language: "eng"})
			_, err := t.Recognize(context.Background(), img)
			Expect(err).To(MatchError(ContainSubstring("exited 3")))
		})
	})
})
