// Package web serves the analyzer registry over HTTP and streams
// per-frame results to websocket subscribers.
package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/teslashibe/go-engage/pkg/analyzer"
	"github.com/teslashibe/go-engage/pkg/hub"
	"github.com/teslashibe/go-engage/pkg/inference"
	"github.com/teslashibe/go-engage/pkg/weights"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Decoder turns encoded image bytes into a frame owned by the caller.
type Decoder func(data []byte) (inference.Frame, error)

// Config holds server settings.
type Config struct {
	Addr         string        `yaml:"addr" validate:"required"`
	BodyLimit    int           `yaml:"body_limit" validate:"gte=0"`
	AllowOrigins string        `yaml:"allow_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`

	// DefaultContext applies to sessions created without a context.
	DefaultContext string `yaml:"default_context"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		BodyLimit:    8 * 1024 * 1024,
		AllowOrigins: "*",
		ReadTimeout:  30 * time.Second,

		DefaultContext: weights.Default,
	}
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithDecoder sets the image decoder used by the analyze endpoint.
func WithDecoder(d Decoder) Option {
	return func(s *Server) { s.decode = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock overrides time.Now for uptime reporting.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server is the HTTP boundary over a session registry.
type Server struct {
	app       *fiber.App
	cfg       Config
	registry  *analyzer.Registry
	optimizer *weights.Optimizer
	hub       *hub.Hub
	decode    Decoder
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
	started   time.Time
}

// NewServer creates a server. Closing a session in the registry
// disconnects its websocket subscribers.
func NewServer(cfg Config, registry *analyzer.Registry, optimizer *weights.Optimizer, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		registry:  registry,
		optimizer: optimizer,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    slog.Default(),
		now:       time.Now,
		decode: func([]byte) (inference.Frame, error) {
			return nil, inference.ErrUnsupportedFrame
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.hub = hub.New("sessions", s.logger)
	s.started = s.now()

	prev := registry.OnClose
	registry.OnClose = func(id string) {
		if prev != nil {
			prev(id)
		}
		s.hub.CloseTopic(id)
	}

	app := fiber.New(fiber.Config{
		AppName:               "engaged",
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           cfg.ReadTimeout,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          s.handleError,
	})

	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowOrigins}))

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/sessions", s.handleListSessions)
	api.Post("/sessions", s.handleCreateSession)
	api.Post("/sessions/:id/analyze", s.handleAnalyze)
	api.Put("/sessions/:id/context", s.handleSetContext)
	api.Post("/sessions/:id/samples", s.handleAddSample)
	api.Get("/sessions/:id/summary", s.handleSummary)
	api.Delete("/sessions/:id", s.handleDeleteSession)
	api.Post("/train", s.handleTrain)
	api.Get("/profiles", s.handleListProfiles)
	api.Put("/profiles/:name", s.handleSetProfile)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/sessions/:id", s.requireSession, websocket.New(s.handleSessionWS))

	s.app = app
	return s
}

// App returns the fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the result broadcaster.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Run starts the hub and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("server stopped")
		return nil
	}
}

// handleError renders every error as {"error": message}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
