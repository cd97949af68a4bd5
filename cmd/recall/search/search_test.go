package searchcmder_test

import (
	"bytes"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	searchcmder "github.com/papercomputeco/recall/cmd/recall/search"
	"github.com/papercomputeco/recall/pkg/search"
	"github.com/papercomputeco/recall/pkg/storage"
)

func TestSearch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Search Command Suite")
}

var _ = Describe("NewSearchCmd", func() {
	It("requires a query", func() {
		cmd := searchcmder.NewSearchCmd()
		Expect(cmd.Args(cmd, []string{})).To(HaveOccurred())
		Expect(cmd.Args(cmd, []string{"two", "words"})).To(Succeed())
	})

	It("exposes paging and the API target", func() {
		cmd := searchcmder.NewSearchCmd()
		Expect(cmd.Flags().Lookup("page")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("page-size").DefValue).To(Equal("10"))
		Expect(cmd.Flags().Lookup("api-target")).NotTo(BeNil())
	})
})

var _ = Describe("PrintResult", func() {
	It("reports empty results", func() {
		var buf bytes.Buffer
		searchcmder.PrintResult(&buf, &search.Result{Query: "x", Page: 1, PageSize: 10})
		Expect(buf.String()).To(ContainSubstring("No results found"))
	})

	It("ranks across pages and flattens entry text", func() {
		var buf bytes.Buffer
		searchcmder.PrintResult(&buf, &search.Result{
			Query:        "build",
			Page:         2,
			PageSize:     3,
			TotalPages:   2,
			TotalMatches: 4,
			Results: []search.Match{{
				Entry: &storage.Entry{App: "Terminal", Title: "zsh", Text: "go build\n./...", Timestamp: 1700000000},
				Score: 0.91234,
			}},
		})

		out := buf.String()
		Expect(out).To(ContainSubstring("#4"))
		Expect(out).To(ContainSubstring("score: 0.9123"))
		Expect(out).To(ContainSubstring("Terminal · zsh"))
		Expect(out).To(ContainSubstring("go build ./..."))
		Expect(out).To(ContainSubstring("page 2 of 2 (4 matches)"))
	})
})
