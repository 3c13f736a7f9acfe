package preflight

import (
	"context"

	"github.com/samber/lo"

	"camtrap/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all preflight checks for the given config. detector may be
// nil, in which case camera detection is skipped.
func RunAll(ctx context.Context, cfg *config.Config, detector CameraDetector) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckBinary("gphoto2", cfg.Camera.GPhoto2Binary),
	}
	if detector != nil {
		results = append(results, CheckCamera(ctx, detector))
	}
	results = append(results, CheckVideoSource(cfg.Video.Source))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	return lo.Filter(results, func(r Result, _ int) bool { return !r.Passed })
}
