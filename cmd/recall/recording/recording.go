// Package recordingcmder provides the recording command for pausing,
// resuming and inspecting the capture loop of a running serve process.
package recordingcmder

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/api"
	"github.com/papercomputeco/recall/cmd/recall/stack"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/recording"
)

const recordingLongDesc string = `Control the capture loop of a running "recall serve".

Pausing stops new frames from being captured until recording is resumed.
Pausing while already paused, or resuming while recording, changes nothing.

Examples:
  recall recording pause
  recall recording resume
  recall recording status
  recall recording stats`

const recordingShortDesc string = "Pause, resume or inspect recording"

type recordingCommander struct {
	apiTarget string
}

func NewRecordingCmd() *cobra.Command {
	cmder := &recordingCommander{}

	cmd := &cobra.Command{
		Use:   "recording",
		Short: recordingShortDesc,
		Long:  recordingLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
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
	}

	def := config.Flags[config.FlagAPITarget]
	cmd.PersistentFlags().StringVarP(&cmder.apiTarget, def.Name, def.Shorthand, config.NewDefaultConfig().Client.APITarget, def.Description)

	cmd.AddCommand(
		cmder.newToggleCmd("pause", "Pause capturing", (*api.Client).Pause),
		cmder.newToggleCmd("resume", "Resume capturing", (*api.Client).Resume),
		cmder.newStatusCmd(),
		cmder.newStatsCmd(),
	)

	return cmd
}

func (c *recordingCommander) client() (*api.Client, error) {
	return api.NewClient(c.apiTarget)
}

func (c *recordingCommander) newToggleCmd(use, short string, call func(*api.Client, context.Context) (*api.RecordingResponse, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			resp, err := call(client, cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !resp.Changed {
				fmt.Fprintf(out, "  %s Recording is already %s\n", cliui.DimStyle.Render("●"), resp.State.Status)
				return nil
			}
			fmt.Fprintf(out, "  %s Recording is now %s\n", cliui.SuccessMark, resp.State.Status)
			return nil
		},
	}
}

func (c *recordingCommander) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the recording state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			state, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			PrintState(cmd.OutOrStdout(), *state)
			return nil
		},
	}
}

func (c *recordingCommander) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the recording state and entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			PrintState(out, stats.State)
			fmt.Fprintln(out, cliui.KeyValue("Entries:      ", strconv.Itoa(stats.ScreenshotCount)))
			fmt.Fprintln(out, cliui.KeyValue("Today:        ", strconv.Itoa(stats.TodayCount)))
			fmt.Fprintln(out)
			return nil
		},
	}
}

// PrintState renders a recording state snapshot.
func PrintState(out io.Writer, s recording.State) {
	mark := cliui.AccentStyle.Render("●")
	switch {
	case s.IsPaused:
		mark = cliui.WarnStyle.Render("●")
	case s.IsStopped:
		mark = cliui.FailMark
	}

	fmt.Fprintf(out, "\n  %s %s\n", mark, cliui.HeaderStyle.Render(string(s.Status)))

	started := ""
	if !s.SessionStart.IsZero() {
		started = fmt.Sprintf("%s (%s ago)",
			s.SessionStart.Local().Format("2006-01-02 15:04:05"),
			time.Since(s.SessionStart).Round(time.Second))
	}
	fmt.Fprintln(out, cliui.KeyValue("Session start:", started))
}
