package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"camtrap/internal/deps"
	"camtrap/internal/services"
	"camtrap/internal/services/gphoto"
)

// CameraDetector lists attached cameras.
type CameraDetector interface {
	Detect(ctx context.Context) ([]gphoto.Camera, error)
}

const detectTimeout = 15 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBinary verifies that an executable resolves on PATH.
func CheckBinary(name, command string) Result {
	status := deps.CheckBinaries([]deps.Requirement{{Name: name, Command: command}})[0]
	if !status.Available {
		return Result{Name: name, Detail: status.Detail}
	}
	return Result{Name: name, Passed: true, Detail: status.Path}
}

// CheckCamera runs camera auto-detection.
func CheckCamera(ctx context.Context, detector CameraDetector) Result {
	const name = "Camera"

	checkCtx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	cameras, err := detector.Detect(checkCtx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Result{Name: name, Detail: "detection timed out (camera busy or hung)"}
	case errors.Is(err, services.ErrConfiguration):
		return Result{Name: name, Detail: "gphoto2 unavailable"}
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("detection failed (%v)", err)}
	case len(cameras) == 0:
		return Result{Name: name, Detail: "no camera detected"}
	}
	first := cameras[0]
	detail := fmt.Sprintf("%s on %s", first.Model, first.Port)
	if len(cameras) > 1 {
		detail += fmt.Sprintf(" (+%d more)", len(cameras)-1)
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckVideoSource verifies that the motion video source can be opened. An
// empty source or a device index maps to /dev/videoN.
func CheckVideoSource(location string) Result {
	const name = "Video source"

	location = strings.TrimSpace(location)
	path := location
	if location == "" {
		path = "/dev/video0"
	} else if index, err := strconv.Atoi(location); err == nil {
		path = fmt.Sprintf("/dev/video%d", index)
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}
