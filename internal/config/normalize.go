package config

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCamera()
	c.normalizeLogging()
	c.normalizeIntegrations()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if strings.TrimSpace(c.Paths.RegionFile) == "" {
		c.Paths.RegionFile = defaultRegionFile
	}

	var err error
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.RegionFile, err = expandPath(c.Paths.RegionFile); err != nil {
		return fmt.Errorf("paths.region_file: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeCamera() {
	c.Camera.GPhoto2Binary = strings.TrimSpace(c.Camera.GPhoto2Binary)
	if c.Camera.GPhoto2Binary == "" {
		c.Camera.GPhoto2Binary = defaultGPhoto2Binary
	}
	c.Camera.Port = strings.TrimSpace(c.Camera.Port)
	c.Camera.USBVendorID = strings.ToLower(strings.TrimSpace(c.Camera.USBVendorID))
	c.Video.Source = strings.TrimSpace(c.Video.Source)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeIntegrations() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	c.Archive.Endpoint = strings.TrimSpace(c.Archive.Endpoint)
	c.Archive.Bucket = strings.TrimSpace(c.Archive.Bucket)
	c.Archive.Prefix = strings.Trim(strings.TrimSpace(c.Archive.Prefix), "/")
	c.Kafka.Topic = strings.TrimSpace(c.Kafka.Topic)
	c.Kafka.Brokers = lo.Compact(lo.Map(c.Kafka.Brokers, func(b string, _ int) string {
		return strings.TrimSpace(b)
	}))
}
