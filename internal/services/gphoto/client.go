package gphoto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"camtrap/internal/capture"
	"camtrap/internal/logging"
	"camtrap/internal/services"
)

var (
	detectLine   = regexp.MustCompile(`^(.+?)\s{2,}(\S+)\s*$`)
	newFileLine  = regexp.MustCompile(`New file is in location (\S+) on the camera`)
	savedLine    = regexp.MustCompile(`Saving file as (\S+)`)
	fileListLine = regexp.MustCompile(`^#(\d+)\s+(\S+)`)
)

// Camera is one detected device.
type Camera struct {
	Model string `json:"model"`
	Port  string `json:"port"`
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithStagingDir sets where captures to camera RAM are transferred before
// the download step moves them into place.
func WithStagingDir(dir string) Option {
	return func(c *Client) {
		if dir = strings.TrimSpace(dir); dir != "" {
			c.staging = dir
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "gphoto2")
	}
}

// Client wraps gphoto2 CLI interactions.
type Client struct {
	binary  string
	port    string
	staging string
	exec    Executor
	logger  *slog.Logger
}

var _ capture.Driver = (*Client)(nil)

// New constructs a gphoto2 client. An empty port selects the first detected camera.
func New(binary, port string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("gphoto2 binary required")
	}
	client := &Client{
		binary:  binary,
		port:    strings.TrimSpace(port),
		staging: filepath.Join(os.TempDir(), "camtrap-incoming"),
		exec:    commandExecutor{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Detect lists connected cameras.
func (c *Client) Detect(ctx context.Context) ([]Camera, error) {
	lines, err := c.run(ctx, "detect", "--auto-detect")
	if err != nil {
		return nil, err
	}
	var cameras []Camera
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" || strings.HasPrefix(line, "Model") || strings.HasPrefix(line, "---") {
			continue
		}
		m := detectLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		cameras = append(cameras, Camera{Model: strings.TrimSpace(m[1]), Port: m[2]})
	}
	return cameras, nil
}

// Open selects a camera and applies the capture target. Target 0 is the
// camera's internal RAM, which does not outlive a gphoto2 session, so captures
// to it are transferred in the same invocation.
func (c *Client) Open(ctx context.Context, target int) (capture.Handle, error) {
	port := c.port
	if port == "" {
		cameras, err := c.Detect(ctx)
		if err != nil {
			return nil, err
		}
		usb := lo.Filter(cameras, func(cam Camera, _ int) bool { return strings.HasPrefix(cam.Port, "usb:") })
		if len(usb) == 0 {
			usb = cameras
		}
		if len(usb) == 0 {
			return nil, services.Wrap(services.ErrDevice, "gphoto2", "open", "no camera detected", nil)
		}
		port = usb[0].Port
		c.logger.Info("camera detected", logging.String("model", usb[0].Model), logging.String("port", port))
	}

	h := &handle{client: c, port: port, ram: target == ramTarget}
	if _, err := h.run(ctx, "set capture target", "--set-config", "capturetarget="+strconv.Itoa(target)); err != nil {
		return nil, err
	}
	return h, nil
}

// run executes gphoto2 and returns its output lines. Failures are device errors.
func (c *Client) run(ctx context.Context, operation string, args ...string) ([]string, error) {
	var lines []string
	err := c.exec.Run(ctx, c.binary, args, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, execNotFound) {
			return lines, services.Wrap(services.ErrConfiguration, "gphoto2", operation, "binary not found: "+c.binary, err)
		}
		return lines, services.Wrap(services.ErrDevice, "gphoto2", operation, lastErrorLine(lines), err)
	}
	if msg := lastErrorLine(lines); msg != "" {
		return lines, services.Wrap(services.ErrDevice, "gphoto2", operation, msg, nil)
	}
	return lines, nil
}

func lastErrorLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "*** Error") {
			return strings.Trim(line, "* ")
		}
	}
	return ""
}

// ramTarget is the capturetarget choice for internal RAM.
const ramTarget = 0

type handle struct {
	client *Client
	port   string
	ram    bool

	mu     sync.Mutex
	closed bool
}

func (h *handle) run(ctx context.Context, operation string, args ...string) ([]string, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, services.Wrap(services.ErrDevice, "gphoto2", operation, "camera handle closed", nil)
	}
	return h.client.run(ctx, operation, append([]string{"--port", h.port}, args...)...)
}

// Capture fires the shutter and returns the new file's location on the camera.
func (h *handle) Capture(ctx context.Context, autofocus bool) (capture.FileLocator, error) {
	if autofocus {
		if _, err := h.run(ctx, "autofocus", "--set-config", "autofocusdrive=1"); err != nil {
			return capture.FileLocator{}, err
		}
	}
	if h.ram {
		return h.captureToStaging(ctx)
	}
	lines, err := h.run(ctx, "capture", "--capture-image")
	if err != nil {
		return capture.FileLocator{}, err
	}
	for _, line := range lines {
		if m := newFileLine.FindStringSubmatch(line); m != nil {
			return capture.FileLocator{Folder: filepath.Dir(m[1]), Name: filepath.Base(m[1])}, nil
		}
	}
	return capture.FileLocator{}, services.Wrap(services.ErrDevice, "gphoto2", "capture", "no file location reported", nil)
}

// captureToStaging captures and transfers in one session. Staged names carry
// a timestamp and short id since RAM captures reuse names like capt0000.jpg.
func (h *handle) captureToStaging(ctx context.Context) (capture.FileLocator, error) {
	staging := h.client.staging
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return capture.FileLocator{}, fmt.Errorf("create staging directory: %w", err)
	}
	pattern := filepath.Join(staging, "%Y%m%d-%H%M%S-"+uuid.NewString()[:8]+"-%f.%C")
	lines, err := h.run(ctx, "capture", "--capture-image-and-download", "--filename", pattern, "--force-overwrite")
	if err != nil {
		return capture.FileLocator{}, err
	}
	var file capture.FileLocator
	for _, line := range lines {
		if m := newFileLine.FindStringSubmatch(line); m != nil {
			file.Folder = filepath.Dir(m[1])
		}
		if m := savedLine.FindStringSubmatch(line); m != nil {
			file.Staged = m[1]
			file.Name = filepath.Base(m[1])
		}
	}
	if file.Staged == "" {
		return capture.FileLocator{}, services.Wrap(services.ErrDevice, "gphoto2", "capture", "no saved file reported", nil)
	}
	return file, nil
}

// Download copies file into destDir and returns the local path.
func (h *handle) Download(ctx context.Context, file capture.FileLocator, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}
	if file.Staged != "" {
		return moveStaged(file, destDir)
	}
	lines, err := h.run(ctx, "list files", "--folder", file.Folder, "--list-files")
	if err != nil {
		return "", err
	}
	number := ""
	for _, line := range lines {
		if m := fileListLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil && m[2] == file.Name {
			number = m[1]
			break
		}
	}
	if number == "" {
		return "", services.Wrap(services.ErrDevice, "gphoto2", "download", "file not found on camera: "+file.Path(), nil)
	}

	dest := filepath.Join(destDir, file.Name)
	if _, err := h.run(ctx, "download", "--folder", file.Folder, "--get-file", number, "--filename", dest, "--force-overwrite"); err != nil {
		return "", err
	}
	return dest, nil
}

// moveStaged moves a capture that was transferred during Capture.
func moveStaged(file capture.FileLocator, destDir string) (string, error) {
	dest := filepath.Join(destDir, file.Name)
	if err := os.Rename(file.Staged, dest); err == nil {
		return dest, nil
	}
	data, err := os.ReadFile(file.Staged)
	if err != nil {
		return "", fmt.Errorf("read staged capture: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write capture: %w", err)
	}
	_ = os.Remove(file.Staged)
	return dest, nil
}

// Close marks the handle unusable. gphoto2 holds no connection between invocations.
func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}
