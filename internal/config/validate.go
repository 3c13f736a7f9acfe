package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateKafka(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.APIBind == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateCamera() error {
	if c.Camera.CaptureTarget < 0 {
		return errors.New("camera.capture_target must be 0 or greater")
	}
	if c.Camera.SettleSeconds < 0 {
		return errors.New("camera.settle_seconds must be 0 or greater")
	}
	return nil
}

func (c *Config) validateVideo() error {
	if c.Video.FrameWidth < 0 {
		return errors.New("video.frame_width must be 0 or greater")
	}
	if c.Video.TargetFPS < 0 {
		return errors.New("video.target_fps must be 0 or greater")
	}
	return nil
}

func (c *Config) validateDetection() error {
	d := c.Detection
	if d.TriggeredAreaPercent <= 0 || d.TriggeredAreaPercent > 1 {
		return errors.New("detection.triggered_area_percent must be greater than 0 and at most 1")
	}
	if d.SquareSide < 2 {
		return errors.New("detection.square_side must be at least 2")
	}
	if d.FramesToTrigger < 1 {
		return errors.New("detection.frames_to_trigger must be at least 1")
	}
	if d.RetriggerIntervalSeconds < 0 {
		return errors.New("detection.retrigger_interval_seconds must be 0 or greater")
	}
	if d.RebaseIntervalSeconds < 1 {
		return errors.New("detection.rebase_interval_seconds must be at least 1")
	}
	if d.CenterX != nil && *d.CenterX < 0 {
		return errors.New("detection.center_x must be 0 or greater")
	}
	if d.CenterY != nil && *d.CenterY < 0 {
		return errors.New("detection.center_y must be 0 or greater")
	}
	if d.BlurKernel < 1 || d.BlurKernel%2 == 0 {
		return errors.New("detection.blur_kernel must be a positive odd number")
	}
	if d.DiffThreshold <= 0 || d.DiffThreshold > 255 {
		return errors.New("detection.diff_threshold must be between 1 and 255")
	}
	if d.DilateIterations < 0 {
		return errors.New("detection.dilate_iterations must be 0 or greater")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateArchive() error {
	if !c.Archive.Enabled {
		return nil
	}
	if c.Archive.Endpoint == "" {
		return errors.New("archive.endpoint must be set when archive.enabled is true")
	}
	if c.Archive.Bucket == "" {
		return errors.New("archive.bucket must be set when archive.enabled is true")
	}
	return nil
}

func (c *Config) validateKafka() error {
	if !c.Kafka.Enabled {
		return nil
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers must list at least one broker when kafka.enabled is true")
	}
	if c.Kafka.Topic == "" {
		return errors.New("kafka.topic must be set when kafka.enabled is true")
	}
	return nil
}
