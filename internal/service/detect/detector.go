// Package detect defines the object-detection adapter used by the presence loop.
package detect

import (
	"context"
	"errors"
	"time"
)

// ErrNotReady is returned by Detect when the model has not finished loading.
var ErrNotReady = errors.New("detector not ready")

// BoundingBox is an axis-aligned box in pixel space.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area in square pixels. Degenerate boxes have zero area.
func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Detection is a single object found in a frame.
type Detection struct {
	Class string      `json:"class"`
	Score float64     `json:"score"`
	BBox  BoundingBox `json:"bbox"`
}

// Frame is one camera image handed to the detector.
type Frame struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	CapturedAt  time.Time
}

// Detector runs object detection on frames.
type Detector interface {
	// Detect returns the objects found in the frame. Implementations return
	// ErrNotReady while the model is still loading.
	Detect(ctx context.Context, frame Frame) ([]Detection, error)

	// Ready reports whether the model can serve frames.
	Ready() bool
}
