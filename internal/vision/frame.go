package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"camtrap/internal/motion"
)

// Frame wraps an OpenCV matrix.
type Frame struct {
	mat gocv.Mat
}

func newFrame(mat gocv.Mat) *Frame {
	return &Frame{mat: mat}
}

// Size returns the frame width and height.
func (f *Frame) Size() image.Point {
	return image.Pt(f.mat.Cols(), f.mat.Rows())
}

// Close releases the matrix.
func (f *Frame) Close() error {
	return f.mat.Close()
}

// Mat exposes the underlying matrix.
func (f *Frame) Mat() gocv.Mat {
	return f.mat
}

func matOf(f motion.Frame) (gocv.Mat, error) {
	frame, ok := f.(*Frame)
	if !ok || frame == nil {
		return gocv.Mat{}, fmt.Errorf("vision: unsupported frame type %T", f)
	}
	if frame.mat.Empty() {
		return gocv.Mat{}, fmt.Errorf("vision: empty frame")
	}
	return frame.mat, nil
}
