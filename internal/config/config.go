package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"

	"camtrap/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, state file and bind address configuration.
type Paths struct {
	DownloadDir string `toml:"download_dir" env:"CAMTRAP_DOWNLOAD_DIR"`
	LogDir      string `toml:"log_dir" env:"CAMTRAP_LOG_DIR"`
	RegionFile  string `toml:"region_file" env:"CAMTRAP_REGION_FILE"`
	APIBind     string `toml:"api_bind" env:"CAMTRAP_API_BIND"`
}

// Camera contains settings for the physical still camera.
type Camera struct {
	GPhoto2Binary string `toml:"gphoto2_binary" env:"CAMTRAP_GPHOTO2_BINARY"`
	Port          string `toml:"port" env:"CAMTRAP_CAMERA_PORT"`
	// CaptureTarget is the gphoto2 capturetarget choice index (0 internal RAM, 1 memory card).
	CaptureTarget int    `toml:"capture_target" env:"CAMTRAP_CAPTURE_TARGET"`
	Autofocus     bool   `toml:"autofocus" env:"CAMTRAP_AUTOFOCUS"`
	SettleSeconds int    `toml:"settle_seconds" env:"CAMTRAP_SETTLE_SECONDS"`
	USBVendorID   string `toml:"usb_vendor_id" env:"CAMTRAP_USB_VENDOR_ID"`
}

// Video contains settings for the motion-detection video feed.
type Video struct {
	// Source is empty for the default capture device, an integer device index,
	// or a path to a video file.
	Source     string `toml:"source" env:"CAMTRAP_VIDEO_SOURCE"`
	FrameWidth int    `toml:"frame_width" env:"CAMTRAP_FRAME_WIDTH"`
	TargetFPS  int    `toml:"target_fps" env:"CAMTRAP_TARGET_FPS"`
}

// Detection contains motion trigger tuning.
type Detection struct {
	TriggeredAreaPercent     float64 `toml:"triggered_area_percent" env:"CAMTRAP_TRIGGERED_AREA_PERCENT"`
	SquareSide               int     `toml:"square_side" env:"CAMTRAP_SQUARE_SIDE"`
	FramesToTrigger          int     `toml:"frames_to_trigger" env:"CAMTRAP_FRAMES_TO_TRIGGER"`
	RetriggerIntervalSeconds float64 `toml:"retrigger_interval_seconds" env:"CAMTRAP_RETRIGGER_INTERVAL"`
	RebaseIntervalSeconds    int     `toml:"rebase_interval_seconds" env:"CAMTRAP_REBASE_INTERVAL"`
	CenterX                  *int    `toml:"center_x,omitempty" env:"CAMTRAP_CENTER_X"`
	CenterY                  *int    `toml:"center_y,omitempty" env:"CAMTRAP_CENTER_Y"`
	BlurKernel               int     `toml:"blur_kernel"`
	DiffThreshold            float64 `toml:"diff_threshold"`
	DilateIterations         int     `toml:"dilate_iterations"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"CAMTRAP_LOG_FORMAT"`
	Level  string `toml:"level" env:"CAMTRAP_LOG_LEVEL"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" env:"CAMTRAP_NTFY_TOPIC"`
	RequestTimeout int    `toml:"request_timeout"`
	Captures       bool   `toml:"captures"`
	DeviceFaults   bool   `toml:"device_faults"`
}

// Archive contains configuration for uploading photos to S3 compatible storage.
type Archive struct {
	Enabled   bool   `toml:"enabled" env:"CAMTRAP_ARCHIVE_ENABLED"`
	Endpoint  string `toml:"endpoint" env:"CAMTRAP_ARCHIVE_ENDPOINT"`
	AccessKey string `toml:"access_key" env:"CAMTRAP_ARCHIVE_ACCESS_KEY"`
	SecretKey string `toml:"secret_key" env:"CAMTRAP_ARCHIVE_SECRET_KEY"`
	Bucket    string `toml:"bucket" env:"CAMTRAP_ARCHIVE_BUCKET"`
	Prefix    string `toml:"prefix"`
	Secure    bool   `toml:"secure"`
}

// Kafka contains configuration for publishing capture events.
type Kafka struct {
	Enabled bool     `toml:"enabled" env:"CAMTRAP_KAFKA_ENABLED"`
	Brokers []string `toml:"brokers" env:"CAMTRAP_KAFKA_BROKERS" envSeparator:","`
	Topic   string   `toml:"topic" env:"CAMTRAP_KAFKA_TOPIC"`
}

// Config encapsulates all configuration values for camtrap.
//
// Configuration sections by subsystem:
//   - Paths: download folder, logs, region file and API bind address
//   - Camera: gphoto2 device control and recovery settle time
//   - Video: motion feed source, resize width and frame rate
//   - Detection: trigger window, retrigger and rebase timing, region defaults
//   - Logging: log format and level
//   - Notifications: ntfy push notification settings
//   - Archive: S3 upload of downloaded photos
//   - Kafka: capture event publishing
type Config struct {
	Paths         Paths         `toml:"paths"`
	Camera        Camera        `toml:"camera"`
	Video         Video         `toml:"video"`
	Detection     Detection     `toml:"detection"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Archive       Archive       `toml:"archive"`
	Kafka         Kafka         `toml:"kafka"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, configError(err)
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, configError(fmt.Errorf("open config: %w", err))
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, configError(fmt.Errorf("parse config: %w", err))
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, "", false, configError(fmt.Errorf("environment overrides: %w", err))
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, configError(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, configError(err)
	}

	return &cfg, resolvedPath, exists, nil
}

func configError(err error) error {
	if err == nil || errors.Is(err, services.ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %w", services.ErrConfiguration, err)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("camtrap.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.LogDir, filepath.Dir(c.Paths.RegionFile)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SettleInterval is how long the device worker waits after a fault before re-initializing.
func (c *Config) SettleInterval() time.Duration {
	return time.Duration(c.Camera.SettleSeconds) * time.Second
}

// RetriggerInterval is the minimum spacing between captures during continuous motion.
func (c *Config) RetriggerInterval() time.Duration {
	return time.Duration(c.Detection.RetriggerIntervalSeconds * float64(time.Second))
}

// RebaseInterval is the period of the reference frame rebase timer.
func (c *Config) RebaseInterval() time.Duration {
	return time.Duration(c.Detection.RebaseIntervalSeconds) * time.Second
}

// NotificationTimeout bounds a single ntfy request.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
