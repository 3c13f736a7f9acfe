package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"camtrap/internal/config"
	"camtrap/internal/daemonrun"
)

type runOverrides struct {
	video           string
	centerX         int
	centerY         int
	areaPercent     float64
	squareSide      int
	framesToTrigger int
	retrigger       float64
	captureTarget   int
	frameWidth      int
	downloadDir     string
	autofocus       bool
	logLevel        string
	development     bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOverrides
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the capture daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := opts.apply(cmd, cfg); err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    opts.logLevel,
				Development: opts.development,
			})
		},
	}

	opts.bind(cmd)
	return cmd
}

func (o *runOverrides) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&o.video, "video", "v", "", "Video source: device index, /dev/videoN, or stream URL")
	flags.IntVarP(&o.centerX, "center-x", "x", 0, "Detection region center column")
	flags.IntVarP(&o.centerY, "center-y", "y", 0, "Detection region center row")
	flags.Float64Var(&o.areaPercent, "triggered-area-percent", 0, "Fraction of the region that must change")
	flags.IntVar(&o.squareSide, "square-side", 0, "Detection region side in pixels")
	flags.IntVar(&o.framesToTrigger, "frames-to-trigger", 0, "Consecutive motion frames before a capture")
	flags.Float64Var(&o.retrigger, "retrigger-interval", 0, "Seconds of continuous motion between captures")
	flags.IntVar(&o.captureTarget, "capture-target", 0, "gphoto2 capture target index")
	flags.IntVar(&o.frameWidth, "frame-width", 0, "Analysis frame width in pixels")
	flags.StringVar(&o.downloadDir, "download-dir", "", "Directory receiving downloaded photos")
	flags.BoolVar(&o.autofocus, "autofocus", false, "Drive autofocus before each capture")
	flags.StringVar(&o.logLevel, "log-level", "", "Override the configured log level")
	flags.BoolVar(&o.development, "development", false, "Enable development logging")
}

// apply copies explicitly set flags onto cfg and revalidates it.
func (o runOverrides) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("video") {
		cfg.Video.Source = strings.TrimSpace(o.video)
	}
	if changed("center-x") {
		x := o.centerX
		cfg.Detection.CenterX = &x
	}
	if changed("center-y") {
		y := o.centerY
		cfg.Detection.CenterY = &y
	}
	if changed("triggered-area-percent") {
		cfg.Detection.TriggeredAreaPercent = o.areaPercent
	}
	if changed("square-side") {
		cfg.Detection.SquareSide = o.squareSide
	}
	if changed("frames-to-trigger") {
		cfg.Detection.FramesToTrigger = o.framesToTrigger
	}
	if changed("retrigger-interval") {
		cfg.Detection.RetriggerIntervalSeconds = o.retrigger
	}
	if changed("capture-target") {
		cfg.Camera.CaptureTarget = o.captureTarget
	}
	if changed("frame-width") {
		cfg.Video.FrameWidth = o.frameWidth
	}
	if changed("download-dir") {
		dir, err := config.ExpandPath(o.downloadDir)
		if err != nil {
			return fmt.Errorf("resolve download dir: %w", err)
		}
		cfg.Paths.DownloadDir = dir
	}
	if changed("autofocus") {
		cfg.Camera.Autofocus = o.autofocus
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid run options: %w", err)
	}
	return nil
}
