package vision

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"camtrap/internal/motion"
	"camtrap/internal/services"
)

// Source reads frames from a capture device or a video file.
type Source struct {
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	width    int
	location string
}

var _ motion.Source = (*Source)(nil)

// OpenSource opens location: empty for the default device, an integer for a
// device index, anything else as a file path or stream URL. Frames are
// resized to width when width is positive.
func OpenSource(location string, width int) (*Source, error) {
	location = strings.TrimSpace(location)
	var device any = location
	switch {
	case location == "":
		device = 0
	default:
		if idx, err := strconv.Atoi(location); err == nil {
			device = idx
		}
	}
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "vision", "open video", fmt.Sprintf("source %q", location), err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, services.Wrap(services.ErrConfiguration, "vision", "open video", fmt.Sprintf("source %q not readable", location), nil)
	}
	return &Source{capture: capture, width: width, location: location}, nil
}

// Next reads one frame. A failed read means the stream has ended.
func (s *Source) Next(ctx context.Context) (motion.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return nil, services.Wrap(services.ErrStreamEnded, "vision", "read", "source closed", nil)
	}

	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, services.Wrap(services.ErrStreamEnded, "vision", "read", s.location, nil)
	}
	if s.width > 0 && mat.Cols() != s.width {
		height := mat.Rows() * s.width / mat.Cols()
		resized := gocv.NewMat()
		gocv.Resize(mat, &resized, image.Pt(s.width, height), 0, 0, gocv.InterpolationArea)
		mat.Close()
		mat = resized
	}
	return newFrame(mat), nil
}

// Close releases the capture device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.capture = nil
	return err
}
