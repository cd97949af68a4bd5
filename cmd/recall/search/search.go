// Package searchcmder provides the search command for semantic search over
// captured entries.
package searchcmder

import (
	"fmt"
	"io"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/api"
	"github.com/papercomputeco/recall/cmd/recall/stack"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/search"
	"github.com/papercomputeco/recall/pkg/utils"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	appStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

const previewWidth = 100

type searchCommander struct {
	query    string
	page     int
	pageSize int
	quiet    bool

	apiTarget string
}

const searchLongDesc string = `Search captured entries via the recall API.

The query is embedded with the configured embedding model and compared with
every stored entry. Results are ranked by cosine similarity, best first.
Requires a running "recall serve".

Use --quiet to print only entry timestamps, one per line.

Examples:
  recall search "quarterly report draft"
  recall search "kubectl rollout" --page 2 --page-size 5
  recall search "invoice" --quiet`

const searchShortDesc string = "Search captured entries"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPITarget})

			paths, err := dotdir.NewManager().Paths(configDir)
			if err != nil {
				return err
			}
			cmder.apiTarget = stack.APITarget(v, paths, cmd.Flags().Changed(config.Flags[config.FlagAPITarget].Name))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = strings.Join(args, " ")
			return cmder.run(cmd)
		},
	}

	cmd.Flags().IntVarP(&cmder.page, "page", "p", 1, "Result page to show")
	cmd.Flags().IntVarP(&cmder.pageSize, "page-size", "n", search.DefaultPageSize, "Results per page")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only entry timestamps, one per line")
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *searchCommander) run(cmd *cobra.Command) error {
	client, err := api.NewClient(c.apiTarget)
	if err != nil {
		return err
	}

	res, err := client.Search(cmd.Context(), c.query, c.page, c.pageSize)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.quiet {
		for _, m := range res.Results {
			fmt.Fprintln(out, m.Entry.Timestamp)
		}
		return nil
	}

	PrintResult(out, res)
	return nil
}

// PrintResult renders one page of search results.
func PrintResult(out io.Writer, res *search.Result) {
	if len(res.Results) == 0 {
		fmt.Fprintf(out, "  %s No results found.\n", cliui.DimStyle.Render("●"))
		return
	}

	fmt.Fprintf(out, "\n%s %s\n\n",
		cliui.HeaderStyle.Render("Search Results for:"),
		timeStyle.Render(fmt.Sprintf("%q", res.Query)),
	)

	offset := max(res.Page-1, 0) * res.PageSize
	for i, m := range res.Results {
		printMatch(out, offset+i+1, m)
	}

	fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf(
		"page %d of %d (%d matches)", res.Page, res.TotalPages, res.TotalMatches)))
}

func printMatch(out io.Writer, rank int, m search.Match) {
	e := m.Entry
	when := time.Unix(e.Timestamp, 0).Local().Format("2006-01-02 15:04:05")

	fmt.Fprintf(out, "  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		scoreStyle.Render(fmt.Sprintf("score: %.4f", m.Score)),
		timeStyle.Render(when),
	)

	source := e.App
	if e.Title != "" {
		source = strings.TrimSpace(source + " · " + e.Title)
	}
	if source != "" {
		fmt.Fprintf(out, "  %s\n", appStyle.Render(utils.Truncate(source, previewWidth)))
	}

	text := utils.OneLine(e.Text)
	if text == "" {
		text = "(no text content)"
	}
	fmt.Fprintf(out, "  %s\n\n", previewStyle.Render(utils.Truncate(text, previewWidth)))
}
