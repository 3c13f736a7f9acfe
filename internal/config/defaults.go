package config

const (
	defaultConfigPath               = "~/.config/camtrap/config.toml"
	defaultDownloadDir              = "~/Pictures/camtrap"
	defaultLogDir                   = "~/.local/share/camtrap/logs"
	defaultRegionFile               = "~/.config/camtrap/region.yaml"
	defaultAPIBind                  = "127.0.0.1:5000"
	defaultGPhoto2Binary            = "gphoto2"
	defaultCaptureTarget            = 1
	defaultSettleSeconds            = 5
	defaultFrameWidth               = 500
	defaultTargetFPS                = 32
	defaultTriggeredAreaPercent     = 0.02
	defaultSquareSide               = 200
	defaultFramesToTrigger          = 5
	defaultRetriggerIntervalSeconds = 3
	defaultRebaseIntervalSeconds    = 300
	defaultBlurKernel               = 21
	defaultDiffThreshold            = 25
	defaultDilateIterations         = 2
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultNotifyRequestTimeout     = 10
	defaultArchiveBucket            = "camtrap"
	defaultKafkaTopic               = "camtrap.captures"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			LogDir:      defaultLogDir,
			RegionFile:  defaultRegionFile,
			APIBind:     defaultAPIBind,
		},
		Camera: Camera{
			GPhoto2Binary: defaultGPhoto2Binary,
			CaptureTarget: defaultCaptureTarget,
			SettleSeconds: defaultSettleSeconds,
		},
		Video: Video{
			FrameWidth: defaultFrameWidth,
			TargetFPS:  defaultTargetFPS,
		},
		Detection: Detection{
			TriggeredAreaPercent:     defaultTriggeredAreaPercent,
			SquareSide:               defaultSquareSide,
			FramesToTrigger:          defaultFramesToTrigger,
			RetriggerIntervalSeconds: defaultRetriggerIntervalSeconds,
			RebaseIntervalSeconds:    defaultRebaseIntervalSeconds,
			BlurKernel:               defaultBlurKernel,
			DiffThreshold:            defaultDiffThreshold,
			DilateIterations:         defaultDilateIterations,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Captures:       true,
			DeviceFaults:   true,
		},
		Archive: Archive{
			Bucket: defaultArchiveBucket,
		},
		Kafka: Kafka{
			Topic: defaultKafkaTopic,
		},
	}
}
