// Package vision captures camera frames and feeds them through the detector.
package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"expo-kiosk-service/internal/service/detect"
)

// ErrEmptyFrame is returned when the camera answers with no image data.
var ErrEmptyFrame = errors.New("empty frame")

// maxSnapshotBytes caps a single snapshot download.
const maxSnapshotBytes = 8 << 20

// Source produces camera frames on demand.
type Source interface {
	Capture(ctx context.Context) (detect.Frame, error)
}

// HTTPSource pulls still images from a camera snapshot endpoint
// (IP cameras and most webcam bridges expose one).
type HTTPSource struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewHTTPSource creates a snapshot source for url.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Capture downloads one snapshot and reads its dimensions.
func (s *HTTPSource) Capture(ctx context.Context) (detect.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return detect.Frame{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return detect.Frame{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return detect.Frame{}, fmt.Errorf("snapshot %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return detect.Frame{}, fmt.Errorf("read snapshot: %w", err)
	}

	frame, err := DecodeFrame(data)
	if err != nil {
		return detect.Frame{}, err
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		frame.ContentType = ct
	}
	frame.CapturedAt = s.now()
	return frame, nil
}

// DecodeFrame wraps raw image bytes in a Frame, reading only the header for
// the dimensions. jpeg, png and webp are supported.
func DecodeFrame(data []byte) (detect.Frame, error) {
	if len(data) == 0 {
		return detect.Frame{}, ErrEmptyFrame
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return detect.Frame{}, fmt.Errorf("decode frame header: %w", err)
	}

	return detect.Frame{
		Data:        data,
		ContentType: "image/" + format,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

// MockSource returns blank frames of a fixed size. It pairs with the mock
// detector, which ignores frame content.
type MockSource struct {
	Width  int
	Height int
	now    func() time.Time
}

// NewMockSource creates a mock source producing width x height frames.
func NewMockSource(width, height int) *MockSource {
	return &MockSource{Width: width, Height: height, now: time.Now}
}

// Capture implements Source.
func (s *MockSource) Capture(ctx context.Context) (detect.Frame, error) {
	if err := ctx.Err(); err != nil {
		return detect.Frame{}, err
	}
	return detect.Frame{
		ContentType: "image/jpeg",
		Width:       s.Width,
		Height:      s.Height,
		CapturedAt:  s.now(),
	}, nil
}
