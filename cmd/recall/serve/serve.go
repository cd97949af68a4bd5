// Package servecmder provides the serve command, which runs the capture loop
// and the API server in one process.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/papercomputeco/recall/api"
	"github.com/papercomputeco/recall/cmd/recall/stack"
	"github.com/papercomputeco/recall/pkg/capture"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/frame"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/recall"
	"github.com/papercomputeco/recall/pkg/recording"
	"github.com/papercomputeco/recall/pkg/screen"
	"github.com/papercomputeco/recall/pkg/search"
	"github.com/papercomputeco/recall/pkg/session"
)

const serveLongDesc string = `Capture the screen continuously and serve the recall API.

Every capture interval each display is grabbed and compared with the last
stored frame of that display. Frames that changed are read with OCR and,
when enabled, described by a vision model. The resulting text is embedded
and stored as a searchable entry.

The API server exposes search, browsing, recording control and
reprocessing. Editing config.toml while serving applies the capture
interval and similarity threshold without a restart.

Only one serve process may run per recall directory.

Examples:
  recall serve
  recall serve --interval 5s --threshold 0.95
  recall serve --storage postgres --postgres-dsn postgres://localhost/recall
  recall serve --events kafka --brokers localhost:9092
  recall serve --logs`

const serveShortDesc string = "Run the capture loop and API server"

type serveCommander struct {
	flags serveFlags

	logs      bool
	debug     bool
	configDir string

	viper  *viper.Viper
	logger *slog.Logger
}

type serveFlags struct {
	listen         string
	storage        string
	sqlitePath     string
	postgresDSN    string
	screenshotsDir string
	interval       time.Duration
	threshold      float64
	primaryOnly    bool
	vision         bool
	visionTarget   string
	visionModel    string
	interpretProv  string
	interpretModel string
	embeddingProv  string
	embeddingTgt   string
	embeddingModel string
	events         string
	brokers        []string
	topic          string
}

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagScreenshotsDir,
	config.FlagInterval,
	config.FlagThreshold,
	config.FlagPrimaryOnly,
	config.FlagVisionEnabled,
	config.FlagVisionTarget,
	config.FlagVisionModel,
	config.FlagInterpretProv,
	config.FlagInterpretModel,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEventsProvider,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			cmder.viper, err = config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(cmder.viper, cmd, config.Flags, serveFlagKeys)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := dotdir.NewManager().Paths(cmder.configDir)
			if err != nil {
				return err
			}
			if cmder.logs {
				return followLog(cmd.Context(), paths.Log, cmd.OutOrStdout())
			}
			return cmder.run(cmd.Context(), paths)
		},
	}

	f := &cmder.flags
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &f.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &f.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &f.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &f.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagScreenshotsDir, &f.screenshotsDir)
	config.AddDurationFlag(cmd, config.Flags, config.FlagInterval, &f.interval)
	config.AddFloatFlag(cmd, config.Flags, config.FlagThreshold, &f.threshold)
	config.AddBoolFlag(cmd, config.Flags, config.FlagPrimaryOnly, &f.primaryOnly)
	config.AddBoolFlag(cmd, config.Flags, config.FlagVisionEnabled, &f.vision)
	config.AddStringFlag(cmd, config.Flags, config.FlagVisionTarget, &f.visionTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagVisionModel, &f.visionModel)
	config.AddStringFlag(cmd, config.Flags, config.FlagInterpretProv, &f.interpretProv)
	config.AddStringFlag(cmd, config.Flags, config.FlagInterpretModel, &f.interpretModel)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &f.embeddingProv)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &f.embeddingTgt)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &f.embeddingModel)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProvider, &f.events)
	config.AddStringSliceFlag(cmd, config.Flags, config.FlagEventsBrokers, &f.brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsTopic, &f.topic)

	cmd.Flags().BoolVar(&cmder.logs, "logs", false, "Follow the log of the running serve process")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, paths *dotdir.Paths) error {
	logFile, err := os.OpenFile(paths.Log, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	c.logger = logger.Multi(
		logger.New(
			logger.WithDebug(c.debug),
			logger.WithPretty(term.IsTerminal(int(os.Stdout.Fd()))),
			logger.WithWriter(os.Stdout),
		),
		logger.New(
			logger.WithDebug(c.debug),
			logger.WithJSON(true),
			logger.WithWriter(logFile),
		),
	)

	sessions, err := session.NewManager(paths.Dir)
	if err != nil {
		return err
	}
	lock, err := sessions.TryLock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v := c.viper

	store, err := stack.OpenStore(ctx, v, paths, c.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, err := stack.NewPublisher(v, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	indexer, err := stack.NewIndexer(v)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer indexer.Embedder().Close()

	extractor, err := stack.NewExtractor(v, c.logger)
	if err != nil {
		return err
	}

	assets, err := stack.AssetStore(v, paths)
	if err != nil {
		return err
	}

	ctrl := recording.NewController()
	sched, err := capture.NewScheduler(capture.Config{
		Controller:   ctrl,
		Grabber:      screen.NewDisplayGrabber(v.GetBool("capture.primary_monitor_only")),
		Detector:     frame.NewDetector(v.GetFloat64("capture.similarity_threshold")),
		Extractor:    extractor,
		Indexer:      indexer,
		Store:        store,
		Assets:       assets,
		Publisher:    publisher,
		Interval:     v.GetDuration("capture.interval"),
		IdleInterval: v.GetDuration("capture.idle_interval"),
		ErrorBackoff: v.GetDuration("capture.error_backoff"),
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}

	engine, err := stack.NewReprocessEngine(v, paths, store, indexer, assets, publisher, c.logger)
	if err != nil {
		return err
	}

	svc, err := recall.NewService(recall.Config{
		Store:      store,
		Controller: ctrl,
		Search:     search.NewEngine(indexer.Embedder(), store, c.logger),
		Reprocess:  engine,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", v.GetString("api.listen"))
	if err != nil {
		return fmt.Errorf("creating api listener: %w", err)
	}

	server := api.NewServer(api.Config{
		ListenAddr: listener.Addr().String(),
		PageSize:   v.GetInt("api.page_size"),
		Assets:     assets,
		Captured:   sched.Captured,
	}, svc, c.logger)
	defer func() { _ = server.Shutdown() }()

	apiURL := advertisedURL(listener.Addr())
	if err := sessions.SaveState(&session.State{
		PID:       os.Getpid(),
		APIURL:    apiURL,
		Database:  databaseLabel(v, paths),
		LogPath:   paths.Log,
		StartedAt: time.Now(),
	}); err != nil {
		return err
	}
	defer func() { _ = sessions.ClearState() }()

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			c.logger.Info("config changed", "file", e.Name)
			applyCaptureSettings(v, sched, c.logger)
		})
		v.WatchConfig()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.RunWithListener(listener); err != nil {
			errChan <- fmt.Errorf("api error: %w", err)
		}
	}()

	captureDone := make(chan error, 1)
	go func() {
		captureDone <- sched.Run(ctx)
	}()

	c.logger.Info("recall is recording", "api_url", apiURL)

	var runErr error
	select {
	case runErr = <-errChan:
	case runErr = <-captureDone:
		captureDone = nil
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
	}

	ctrl.Stop()
	if captureDone != nil {
		if err := <-captureDone; err != nil && !errors.Is(err, context.Canceled) {
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}

// captureTuner is the part of the scheduler that can change while running.
type captureTuner interface {
	SetInterval(time.Duration)
	SetThreshold(float64)
}

// applyCaptureSettings pushes the reloadable capture settings to t.
func applyCaptureSettings(v *viper.Viper, t captureTuner, l *slog.Logger) {
	if interval := v.GetDuration("capture.interval"); interval > 0 {
		t.SetInterval(interval)
	} else {
		l.Warn("ignoring invalid capture interval", "interval", v.GetString("capture.interval"))
	}

	threshold := v.GetFloat64("capture.similarity_threshold")
	if threshold <= 0 || threshold > 1 {
		l.Warn("ignoring invalid similarity threshold", "threshold", threshold)
		return
	}
	t.SetThreshold(threshold)
}

// databaseLabel names the store in the session file.
func databaseLabel(v *viper.Viper, paths *dotdir.Paths) string {
	switch driver := v.GetString("storage.driver"); driver {
	case "sqlite", "":
		if p := v.GetString("storage.sqlite_path"); p != "" {
			return p
		}
		return paths.Database
	default:
		return driver
	}
}

// advertisedURL is the URL clients use to reach a listener. Wildcard
// addresses are reached through localhost.
func advertisedURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
