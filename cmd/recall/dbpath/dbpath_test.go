package dbpathcmder

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDBPath(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "DB Path Suite")
}

var _ = Describe("ResolveDatabasePath", func() {
	var home, cwd string

	touch := func(path string) {
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path, nil, 0o600)).To(Succeed())
	}

	BeforeEach(func() {
		home = GinkgoT().TempDir()
		cwd = GinkgoT().TempDir()

		GinkgoT().Setenv("HOME", home)
		GinkgoT().Setenv("XDG_DATA_HOME", "")
		GinkgoT().Setenv("RECALL_DB", "")

		orig, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(cwd)).To(Succeed())
		DeferCleanup(os.Chdir, orig)
	})

	It("returns the override unchanged", func() {
		Expect(ResolveDatabasePath("/tmp/x.db")).To(Equal("/tmp/x.db"))
	})

	It("prefers RECALL_DB when set", func() {
		GinkgoT().Setenv("RECALL_DB", "/tmp/custom.db")
		Expect(ResolveDatabasePath("")).To(Equal("/tmp/custom.db"))
	})

	It("resolves ~/.recall/recall.db when present", func() {
		touch(filepath.Join(home, ".recall", "recall.db"))
		touch(filepath.Join(cwd, ".recall", "recall.db"))
		Expect(ResolveDatabasePath("")).To(Equal(filepath.Join(home, ".recall", "recall.db")))
	})

	It("prefers XDG_DATA_HOME over home", func() {
		xdg := GinkgoT().TempDir()
		GinkgoT().Setenv("XDG_DATA_HOME", xdg)
		touch(filepath.Join(xdg, "recall", "recall.db"))
		touch(filepath.Join(home, ".recall", "recall.db"))
		Expect(ResolveDatabasePath("")).To(Equal(filepath.Join(xdg, "recall", "recall.db")))
	})

	It("falls back to the local directory", func() {
		touch(filepath.Join(cwd, ".recall", "recall.db"))
		Expect(ResolveDatabasePath("")).To(Equal(filepath.Join(".recall", "recall.db")))
	})

	It("errors when nothing exists", func() {
		_, err := ResolveDatabasePath("")
		Expect(err).To(MatchError(ErrNoDatabase))
	})

	It("prints the absolute path", func() {
		touch(filepath.Join(cwd, ".recall", "recall.db"))

		var out bytes.Buffer
		cmd := NewDBPathCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{})
		Expect(cmd.Execute()).To(Succeed())
		Expect(strings.TrimSpace(out.String())).To(HaveSuffix(filepath.Join(".recall", "recall.db")))
		Expect(filepath.IsAbs(strings.TrimSpace(out.String()))).To(BeTrue())
	})
})
