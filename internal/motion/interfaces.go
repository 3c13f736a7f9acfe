package motion

import (
	"context"
	"image"
)

// Frame is an image owned by whoever received it. Close releases it.
type Frame interface {
	Size() image.Point
	Close() error
}

// Source yields frames. Next returns an error marked services.ErrStreamEnded
// when the source is exhausted.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Contour is one connected region of change.
type Contour struct {
	Area   float64
	Bounds image.Rectangle
}

// Vision performs the stateless image operations of the analysis pipeline.
// Each call returns a new Frame; inputs are not modified.
type Vision interface {
	Crop(f Frame, r image.Rectangle) (Frame, error)
	ToGray(f Frame) (Frame, error)
	Blur(f Frame) (Frame, error)
	AbsDiff(a, b Frame) (Frame, error)
	Threshold(f Frame) (Frame, error)
	FindContours(f Frame) ([]Contour, error)
}

// Composite is everything drawn into one preview image.
type Composite struct {
	Original  Frame
	Crop      Frame
	Threshold Frame
	Delta     Frame
	Region    image.Rectangle
	Boxes     []image.Rectangle
	FPS       int
}

// Compositor renders a Composite to JPEG bytes.
type Compositor interface {
	Compose(c Composite) ([]byte, error)
}

// Capturer accepts capture requests without waiting for them to run.
type Capturer interface {
	Capture() error
}
