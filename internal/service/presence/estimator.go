// Package presence turns per-frame detections into presence and proximity signals.
package presence

import (
	"sync"
	"time"

	"expo-kiosk-service/internal/service/detect"
)

// Config holds the presence thresholds.
type Config struct {
	Label          string  // detection class counted as a visitor
	MinConfidence  float64 // strict lower bound on the detection score
	CloseAreaRatio float64 // strict lower bound on box area / frame area
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		Label:          "person",
		MinConfidence:  0.5,
		CloseAreaRatio: 0.15,
	}
}

// Person is a detection that passed the class and confidence filter.
type Person struct {
	BBox      detect.BoundingBox `json:"bbox"`
	Score     float64            `json:"score"`
	AreaRatio float64            `json:"areaRatio"`
	Close     bool               `json:"close"`
}

// Snapshot is the presence state derived from a single frame.
type Snapshot struct {
	PersonCount int      `json:"personCount"`
	AnyClose    bool     `json:"anyClose"`
	Persons     []Person `json:"persons,omitempty"`
}

// Estimator keeps the latest snapshot. There is no smoothing: every
// observation replaces the previous one.
type Estimator struct {
	cfg Config

	mu       sync.RWMutex
	current  Snapshot
	lastSeen time.Time
}

// NewEstimator creates an estimator. Zero-valued thresholds fall back to defaults.
func NewEstimator(cfg Config) *Estimator {
	def := DefaultConfig()
	if cfg.Label == "" {
		cfg.Label = def.Label
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.CloseAreaRatio <= 0 {
		cfg.CloseAreaRatio = def.CloseAreaRatio
	}
	return &Estimator{cfg: cfg}
}

// Estimate computes a snapshot without touching the estimator state.
// A frame with no area never reports a close visitor.
func (e *Estimator) Estimate(dets []detect.Detection, frameWidth, frameHeight int) Snapshot {
	frameArea := float64(frameWidth) * float64(frameHeight)
	if frameWidth <= 0 || frameHeight <= 0 {
		frameArea = 0
	}

	var snap Snapshot
	for _, d := range dets {
		if d.Class != e.cfg.Label || !(d.Score > e.cfg.MinConfidence) {
			continue
		}

		p := Person{BBox: d.BBox, Score: d.Score}
		if frameArea > 0 {
			p.AreaRatio = d.BBox.Area() / frameArea
			p.Close = p.AreaRatio > e.cfg.CloseAreaRatio
		}

		snap.PersonCount++
		snap.AnyClose = snap.AnyClose || p.Close
		snap.Persons = append(snap.Persons, p)
	}
	return snap
}

// Observe computes and stores the snapshot for a frame captured at ts.
func (e *Estimator) Observe(dets []detect.Detection, frameWidth, frameHeight int, ts time.Time) Snapshot {
	snap := e.Estimate(dets, frameWidth, frameHeight)

	e.mu.Lock()
	e.current = snap
	if snap.PersonCount > 0 {
		e.lastSeen = ts
	}
	e.mu.Unlock()

	return snap
}

// Current returns the latest snapshot.
func (e *Estimator) Current() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// LastSeen returns when a visitor was last in frame. Zero if never.
func (e *Estimator) LastSeen() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSeen
}
