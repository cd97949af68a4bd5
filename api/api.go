package api

import (
	"expvar"
	"log/slog"
	"net"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/recall"
	"github.com/papercomputeco/recall/pkg/search"
)

// metrics is published once per process under "recall" in /debug/vars.
var metrics = expvar.NewMap("recall")

// Server is the API server for querying and controlling recall.
type Server struct {
	config  Config
	service *recall.Service
	logger  *slog.Logger
	app     *fiber.App
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a new API server over service.
func NewServer(config Config, service *recall.Service, l *slog.Logger) *Server {
	if config.PageSize <= 0 {
		config.PageSize = search.DefaultPageSize
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		service: service,
		logger:  logger.OrNop(l),
		app:     app,
	}

	// A panicking handler answers 500 instead of taking down the capture loop.
	app.Use(fiberrecover.New(fiberrecover.Config{
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			s.logger.Error("panic in handler", "method", c.Method(), "path", c.Path(), "error", e)
		},
		EnableStackTrace: true,
	}))

	if config.Captured != nil {
		metrics.Set("captured_entries", expvar.Func(func() any { return config.Captured() }))
	}

	app.Get("/ping", s.handlePing)
	app.Get("/debug/vars", adaptor.HTTPHandler(expvar.Handler()))

	v1 := app.Group("/v1")
	v1.Get("/search", s.handleSearch)
	v1.Get("/entries", s.handleTimeline)
	v1.Get("/entries/:timestamp", s.handleGetEntry)
	v1.Get("/timestamps", s.handleTimestamps)
	v1.Get("/dates", s.handleDates)
	v1.Get("/dates/:date", s.handleDay)
	v1.Get("/stats", s.handleStats)
	v1.Get("/activities", s.handleActivities)

	v1.Post("/recording/pause", s.handlePause)
	v1.Post("/recording/resume", s.handleResume)
	v1.Get("/recording/status", s.handleRecordingStatus)
	v1.Get("/recording/stats", s.handleRecordingStats)

	v1.Post("/reprocess", s.handleReprocess)
	v1.Get("/assets/:name", s.handleAsset)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(l net.Listener) error {
	s.logger.Info("starting API server", "listen", l.Addr().String())
	return s.app.Listener(l)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Error: msg})
}
