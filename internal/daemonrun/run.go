// Package daemonrun assembles and runs the camtrap daemon in the foreground.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"camtrap/internal/capture"
	"camtrap/internal/config"
	"camtrap/internal/daemon"
	"camtrap/internal/deps"
	"camtrap/internal/events"
	"camtrap/internal/logging"
	"camtrap/internal/motion"
	"camtrap/internal/notifications"
	"camtrap/internal/preflight"
	"camtrap/internal/region"
	"camtrap/internal/services/gphoto"
	"camtrap/internal/services/kafka"
	"camtrap/internal/services/objectstore"
	"camtrap/internal/trigger"
	"camtrap/internal/vision"
)

const (
	previewQuality = 80
	eventBuffer    = 64
	stopTimeout    = 30 * time.Second
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the camtrap daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("camtrap-%s.log", runID))
	logHub := logging.NewStreamHub(4096)

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Stream:           logHub,
		SessionID:        uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update camtrap.log link: %v\n", err)
	}
	pidPath := filepath.Join(cfg.Paths.LogDir, "camtrap.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	camera, err := gphoto.New(cfg.Camera.GPhoto2Binary, cfg.Camera.Port,
		gphoto.WithLogger(logger),
		gphoto.WithStagingDir(filepath.Join(cfg.Paths.DownloadDir, ".incoming")),
	)
	if err != nil {
		return fmt.Errorf("gphoto2 client: %w", err)
	}
	logPreflight(signalCtx, logger, cfg, camera)

	sinks, closeSinks := buildSinks(cfg, logger)
	defer closeSinks()
	dispatcher := events.NewDispatcher(logger, eventBuffer, cfg.NotificationTimeout(), sinks...)

	coordinator := capture.NewCoordinator(capture.Options{
		Driver:         camera,
		DownloadDir:    cfg.Paths.DownloadDir,
		CaptureTarget:  cfg.Camera.CaptureTarget,
		Autofocus:      cfg.Camera.Autofocus,
		SettleInterval: cfg.SettleInterval(),
		Hooks:          dispatcher.Hooks(),
		Logger:         logger,
	})

	source, err := vision.OpenSource(cfg.Video.Source, cfg.Video.FrameWidth)
	if err != nil {
		logger.Error("open video source", logging.Error(err))
		return err
	}
	defer source.Close()

	loop := motion.NewLoop(motion.Config{
		TargetFPS:      cfg.Video.TargetFPS,
		SquareSide:     cfg.Detection.SquareSide,
		RebaseInterval: cfg.RebaseInterval(),
		CenterX:        cfg.Detection.CenterX,
		CenterY:        cfg.Detection.CenterY,
	}, motion.Deps{
		Source: source,
		Vision: vision.NewPipeline(vision.Options{
			BlurKernel:       cfg.Detection.BlurKernel,
			DiffThreshold:    cfg.Detection.DiffThreshold,
			DilateIterations: cfg.Detection.DilateIterations,
		}),
		Compositor: &vision.Compositor{Quality: previewQuality},
		Capturer:   coordinator,
		Machine: trigger.NewMachine(trigger.Config{
			FramesToTrigger:      cfg.Detection.FramesToTrigger,
			RetriggerInterval:    cfg.RetriggerInterval(),
			TriggeredAreaPercent: cfg.Detection.TriggeredAreaPercent,
			SquareSide:           cfg.Detection.SquareSide,
		}),
		Regions: region.NewStore(cfg.Paths.RegionFile),
		Logger:  logger,
	})

	d, err := daemon.New(cfg, daemon.Components{
		Device:   coordinator,
		Detector: loop,
		Events:   dispatcher,
		Logs:     logHub,
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file, bind address and video source"),
		)
		return err
	}
	logger.Info("camtrap daemon running",
		logging.String("address", d.Address()),
		logging.String("lock", d.LockPath()),
	)
	announceStart(signalCtx, cfg, logger, d.Address())

	<-signalCtx.Done()
	logger.Info("camtrap daemon shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(cmdCtx), stopTimeout)
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		return err
	}
	if err := d.DetectorErr(); err != nil {
		return fmt.Errorf("frame analysis: %w", err)
	}
	return nil
}

// buildSinks constructs the enabled event sinks. Sinks that fail to connect
// are logged and skipped.
func buildSinks(cfg *config.Config, logger *slog.Logger) ([]events.Sink, func()) {
	sinks := []events.Sink{notifications.Sink{Service: notifications.NewService(cfg)}}
	closers := []func() error{}

	if cfg.Archive.Enabled {
		archiver, err := objectstore.New(cfg.Archive, logger)
		if err != nil {
			logging.WarnWithContext(logger, "photo archive disabled", "archive_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check [archive] endpoint and credentials"),
				logging.String(logging.FieldImpact, "photos stay on local disk only"),
			)
		} else {
			sinks = append(sinks, archiver)
		}
	}

	if cfg.Kafka.Enabled {
		publisher, err := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			logging.WarnWithContext(logger, "kafka publishing disabled", "kafka_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check [kafka] brokers"),
				logging.String(logging.FieldImpact, "capture events are not published"),
			)
		} else {
			sinks = append(sinks, publisher)
			closers = append(closers, publisher.Close)
		}
	}

	return sinks, func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}
}

func announceStart(ctx context.Context, cfg *config.Config, logger *slog.Logger, address string) {
	notifier := notifications.NewService(cfg)
	if err := notifier.Publish(ctx, notifications.EventDaemonStarted, notifications.Payload{"bind": address}); err != nil {
		logger.Debug("start notification failed", logging.Error(err))
	}
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, detector preflight.CameraDetector) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg, detector)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run camtrap check for details"),
			logging.String(logging.FieldImpact, "captures may fail until the check passes"),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "camtrap.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := deps.CheckBinaries([]deps.Requirement{
		{Name: "gphoto2", Command: cfg.Camera.GPhoto2Binary, Description: "Camera control"},
	})
	gphoto2 := statuses[0]
	for _, missing := range deps.MissingRequired(statuses) {
		logging.WarnWithContext(logger, "required dependency missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("command", missing.Command),
			logging.String(logging.FieldErrorHint, "install "+missing.Name+" or set camera.gphoto2_binary"),
			logging.String(logging.FieldImpact, "captures will be dropped until the binary is available"),
		)
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("gphoto2_available", gphoto2.Available),
		logging.String("gphoto2_binary", gphoto2.Command),
		logging.String("video_source", cfg.Video.Source),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("archive_enabled", cfg.Archive.Enabled),
		logging.Bool("kafka_enabled", cfg.Kafka.Enabled),
	)
}
