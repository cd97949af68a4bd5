// Package reprocesscmder provides the reprocess command, which re-derives the
// text and embedding of stored entries.
package reprocesscmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/api"
	"github.com/papercomputeco/recall/cmd/recall/stack"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/reprocess"
)

const reprocessLongDesc string = `Re-derive the text and embedding of stored entries.

Each entry's frame is read again with OCR and the vision model, the results
are interpreted by an LLM, and the best available text is embedded and
written back. Entries without a stored frame are re-derived from their
current text.

Finished entries are recorded in a cache file so an interrupted run resumes
where it stopped. Entries already in the cache, or whose text already looks
interpreted, are skipped unless --force is given.

By default the store is opened directly. Use --remote to run the pass inside
a running "recall serve" instead.

Examples:
  recall reprocess
  recall reprocess --limit 50 --dry-run
  recall reprocess --workers 8 --batch-size 40
  recall reprocess --force --cache /tmp/fresh.cache
  recall reprocess --remote`

const reprocessShortDesc string = "Re-derive text and embeddings of stored entries"

type reprocessCommander struct {
	opts reprocess.Options

	remote    bool
	apiTarget string

	storage     string
	sqlitePath  string
	postgresDSN string
	cachePath   string
	vision      bool

	debug     bool
	configDir string
	viper     *viper.Viper
}

var reprocessFlagKeys = []string{
	config.FlagWorkers,
	config.FlagBatchSize,
	config.FlagCachePath,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagVisionEnabled,
	config.FlagAPITarget,
}

func NewReprocessCmd() *cobra.Command {
	cmder := &reprocessCommander{}

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: reprocessShortDesc,
		Long:  reprocessLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			cmder.viper, err = config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(cmder.viper, cmd, config.Flags, reprocessFlagKeys)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			paths, err := dotdir.NewManager().Paths(cmder.configDir)
			if err != nil {
				return err
			}

			opts := cmder.options()
			if cmder.remote {
				target := stack.APITarget(cmder.viper, paths, cmd.Flags().Changed(config.Flags[config.FlagAPITarget].Name))
				return runRemote(ctx, cmd.OutOrStdout(), target, opts)
			}
			return cmder.runLocal(ctx, cmd.OutOrStdout(), paths, opts)
		},
	}

	config.AddIntFlag(cmd, config.Flags, config.FlagWorkers, &cmder.opts.Workers)
	config.AddIntFlag(cmd, config.Flags, config.FlagBatchSize, &cmder.opts.BatchSize)
	config.AddStringFlag(cmd, config.Flags, config.FlagCachePath, &cmder.cachePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddBoolFlag(cmd, config.Flags, config.FlagVisionEnabled, &cmder.vision)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	cmd.Flags().IntVar(&cmder.opts.Limit, "limit", 0, "Reprocess at most this many entries (0 for all)")
	cmd.Flags().BoolVar(&cmder.opts.Force, "force", false, "Reprocess entries that are cached or already look interpreted")
	cmd.Flags().BoolVar(&cmder.opts.DryRun, "dry-run", false, "Derive new text without writing it")
	cmd.Flags().BoolVar(&cmder.remote, "remote", false, "Run the pass inside the running serve process")

	return cmd
}

// options merges the per-run flags with the configured reprocess defaults.
func (c *reprocessCommander) options() reprocess.Options {
	opts := stack.ReprocessOptions(c.viper)
	opts.Limit = c.opts.Limit
	opts.Force = c.opts.Force
	opts.DryRun = c.opts.DryRun
	return opts
}

func (c *reprocessCommander) runLocal(ctx context.Context, out io.Writer, paths *dotdir.Paths, opts reprocess.Options) error {
	log := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)
	v := c.viper

	store, err := stack.OpenStore(ctx, v, paths, log)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, err := stack.NewPublisher(v, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	indexer, err := stack.NewIndexer(v)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer indexer.Embedder().Close()

	assets, err := stack.AssetStore(v, paths)
	if err != nil {
		return err
	}

	engine, err := stack.NewReprocessEngine(v, paths, store, indexer, assets, publisher, log)
	if err != nil {
		return err
	}

	res, err := engine.Run(ctx, opts)
	return report(out, res, err)
}

func runRemote(ctx context.Context, out io.Writer, target string, opts reprocess.Options) error {
	client, err := api.NewClient(target)
	if err != nil {
		return err
	}

	var res *reprocess.Result
	err = cliui.Step(out, "Reprocessing entries on "+target, func() error {
		var err error
		res, err = client.Reprocess(ctx, opts)
		return err
	})
	return report(out, res, err)
}

func report(out io.Writer, res *reprocess.Result, err error) error {
	if res != nil {
		fmt.Fprintf(out, "  %s %s\n", cliui.Mark(err), res.Summary())
	}
	if err != nil {
		return fmt.Errorf("reprocessing: %w", err)
	}
	return nil
}
