// Package mock provides a scripted detector for local runs and tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"expo-kiosk-service/internal/service/detect"
)

// Detector replays a script of detection results, one entry per frame.
// When the script is exhausted the last entry repeats.
type Detector struct {
	mu     sync.Mutex
	script [][]detect.Detection
	next   int
	ready  atomic.Bool
	err    error
	calls  int
}

// New creates a mock detector that is ready immediately.
func New(script ...[]detect.Detection) *Detector {
	d := &Detector{script: script}
	d.ready.Store(true)
	return d
}

// SetReady toggles model readiness.
func (d *Detector) SetReady(ready bool) {
	d.ready.Store(ready)
}

// SetError makes every subsequent Detect fail with err. nil clears it.
func (d *Detector) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// SetScript replaces the script and rewinds it.
func (d *Detector) SetScript(script ...[]detect.Detection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = script
	d.next = 0
}

// Calls returns how many frames were passed to Detect.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Ready implements detect.Detector.
func (d *Detector) Ready() bool {
	return d.ready.Load()
}

// Detect implements detect.Detector.
func (d *Detector) Detect(ctx context.Context, frame detect.Frame) ([]detect.Detection, error) {
	if !d.Ready() {
		return nil, detect.ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++

	if d.err != nil {
		return nil, d.err
	}
	if len(d.script) == 0 {
		return nil, nil
	}

	idx := d.next
	if idx >= len(d.script) {
		idx = len(d.script) - 1
	} else {
		d.next++
	}

	out := make([]detect.Detection, len(d.script[idx]))
	copy(out, d.script[idx])
	return out, nil
}

// Person builds a person detection with the given score and box size, at the origin.
func Person(score, width, height float64) detect.Detection {
	return detect.Detection{
		Class: "person",
		Score: score,
		BBox:  detect.BoundingBox{Width: width, Height: height},
	}
}
