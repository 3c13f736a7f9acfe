// Package region models the square of the frame watched for motion and
// persists its center between sessions.
package region

import (
	"fmt"
	"image"

	"github.com/samber/lo"
)

// Region is the detection square, centered at (CenterX, CenterY) in frame
// pixel coordinates. X is the column and Y the row.
type Region struct {
	CenterX int `json:"x"`
	CenterY int `json:"y"`
	Side    int `json:"side"`
}

// Centered returns a region of the given side centered in a frame.
func Centered(frame image.Point, side int) Region {
	return Region{CenterX: frame.X / 2, CenterY: frame.Y / 2, Side: side}
}

// Bounds returns the square clipped to a frame of the given size.
func (r Region) Bounds(frame image.Point) image.Rectangle {
	half := r.Side / 2
	return image.Rect(
		lo.Clamp(r.CenterX-half, 0, frame.X),
		lo.Clamp(r.CenterY-half, 0, frame.Y),
		lo.Clamp(r.CenterX+half, 0, frame.X),
		lo.Clamp(r.CenterY+half, 0, frame.Y),
	)
}

// Contains reports whether the center lies inside a frame of the given size.
func (r Region) Contains(frame image.Point) bool {
	return image.Pt(r.CenterX, r.CenterY).In(image.Rectangle{Max: frame})
}

// Validate rejects regions that cannot be applied to a frame of the given size.
func (r Region) Validate(frame image.Point) error {
	if r.Side <= 0 {
		return fmt.Errorf("region side must be positive, got %d", r.Side)
	}
	if r.CenterX < 0 || r.CenterY < 0 {
		return fmt.Errorf("center (%d,%d) must not be negative", r.CenterX, r.CenterY)
	}
	if frame.X > 0 && frame.Y > 0 && !r.Contains(frame) {
		return fmt.Errorf("center (%d,%d) outside %dx%d frame", r.CenterX, r.CenterY, frame.X, frame.Y)
	}
	return nil
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d)", r.CenterX, r.CenterY)
}
