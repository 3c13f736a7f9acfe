package web

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"camtrap/internal/capture"
	"camtrap/internal/feed"
	"camtrap/internal/logging"
	"camtrap/internal/motion"
	"camtrap/internal/region"
)

//go:embed assets/index.html
var indexHTML string

// Detector is the frame analysis side of the daemon.
type Detector interface {
	Preview() *feed.Slot[[]byte]
	Status() *feed.StatusBoard
	Recenter(x, y int) (region.Region, error)
	Snapshot() motion.Snapshot
}

// Device is the capture side of the daemon.
type Device interface {
	Capture() error
	Status() capture.Status
}

// Options configures a Server.
type Options struct {
	Bind     string
	Detector Detector
	Device   Device
	Logs     *logging.StreamHub
	Logger   *slog.Logger
	// FollowTimeout bounds a long-poll on /api/logs.
	FollowTimeout time.Duration
	// KeepAlive is how often an idle preview or status stream is written to,
	// so a departed client is noticed. Defaults to 5s.
	KeepAlive time.Duration
}

// Server is the HTTP front end.
type Server struct {
	app      *fiber.App
	bind     string
	detector Detector
	device   Device
	logs     *logging.StreamHub
	logger   *slog.Logger
	follow   time.Duration
	keep     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// New builds the fiber app and registers routes.
func New(opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	follow := opts.FollowTimeout
	if follow <= 0 {
		follow = 25 * time.Second
	}
	keep := opts.KeepAlive
	if keep <= 0 {
		keep = 5 * time.Second
	}
	s := &Server{
		bind:     strings.TrimSpace(opts.Bind),
		detector: opts.Detector,
		device:   opts.Device,
		logs:     opts.Logs,
		logger:   logging.NewComponentLogger(opts.Logger, "web"),
		follow:   follow,
		keep:     keep,
		ctx:      ctx,
		cancel:   cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "camtrap",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		IdleTimeout:           60 * time.Second,
	})
	app.Use(cors.New())

	app.Get("/", s.handleIndex)
	app.Get("/video_feed_frame", s.handleVideoFeed)
	app.Get("/status_text", s.handleStatusText)
	app.Get("/get_coord", s.handleRecenter)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/capture", s.handleCapture)
	api.Get("/logs", s.handleLogs)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/preview", websocket.New(s.handlePreviewWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App exposes the fiber app for in-process requests.
func (s *Server) App() *fiber.App { return s.app }

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if s.bind == "" {
		return fmt.Errorf("web listen: bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("web listen: %w", err)
	}
	done := make(chan struct{})
	s.mu.Lock()
	s.listener = listener
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.app.Listener(listener); err != nil {
			s.logger.Error("web server error", logging.Error(err))
		}
	}()
	s.logger.Info("web server listening",
		logging.String(logging.FieldEventType, "web_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

// Stop ends open streams and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	s.mu.Lock()
	started := s.listener != nil
	done := s.done
	s.mu.Unlock()
	if !started {
		return nil
	}
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("web shutdown: %w", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.SendString(indexHTML)
}

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
