package vision

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"expo-kiosk-service/internal/observability/metrics"
	"expo-kiosk-service/internal/service/detect"
)

// Observation is the detector output for one frame.
type Observation struct {
	Detections []detect.Detection
	Width      int
	Height     int
	CapturedAt time.Time
}

// Sink receives observations. PostObservation must not block.
type Sink interface {
	PostObservation(obs Observation)
}

// Loop captures a frame, runs detection and posts the result, once per
// interval. Frames are skipped while the detector is not ready.
type Loop struct {
	source   Source
	detector detect.Detector
	sink     Sink
	interval time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewLoop creates a detection loop.
func NewLoop(source Source, detector detect.Detector, sink Sink, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 66 * time.Millisecond
	}
	return &Loop{
		source:   source,
		detector: detector,
		sink:     sink,
		interval: interval,
		logger:   log.With().Str("component", "vision-loop").Logger(),
		metrics:  metrics.DefaultMetrics,
	}
}

// Run processes frames until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().Dur("interval", l.interval).Msg("Detection loop started")

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		l.Step(ctx)

		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Detection loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Step handles a single frame. It reports whether an observation was posted.
func (l *Loop) Step(ctx context.Context) bool {
	if !l.detector.Ready() {
		l.metrics.RecordFrameSkipped("not_ready")
		return false
	}

	frame, err := l.source.Capture(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Debug().Err(err).Msg("Frame capture failed")
		}
		l.metrics.RecordFrameSkipped("capture")
		return false
	}

	start := time.Now()
	dets, err := l.detector.Detect(ctx, frame)
	if err != nil {
		reason := "detect"
		if errors.Is(err, detect.ErrNotReady) {
			reason = "not_ready"
		} else if ctx.Err() == nil {
			l.logger.Warn().Err(err).Msg("Detection failed")
		}
		l.metrics.RecordFrameSkipped(reason)
		return false
	}
	l.metrics.RecordFrame(time.Since(start).Seconds())

	l.sink.PostObservation(Observation{
		Detections: dets,
		Width:      frame.Width,
		Height:     frame.Height,
		CapturedAt: frame.CapturedAt,
	})
	return true
}
