// Package mock provides a mock STT adapter for running without cloud credentials.
// It simulates streaming recognition: progressive partial transcripts, exactly
// one final per utterance, then an end-of-utterance signal.
package mock

import (
	"context"
	"sync"
	"time"

	"expo-kiosk-service/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances are visitor questions a kiosk typically hears.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"tell me", "tell me about", "tell me about the solar"},
		Final:      "tell me about the solar tracker",
		Confidence: 0.93,
	},
	{
		Partials:   []string{"hello"},
		Final:      "hello there",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"how does", "how does the line", "how does the line follower"},
		Final:      "how does the line follower work",
		Confidence: 0.9,
	},
	{
		Partials:   []string{"what is", "what is smart"},
		Final:      "what is smart irrigation",
		Confidence: 0.88,
	},
	{
		Partials:   []string{"how are"},
		Final:      "how are you",
		Confidence: 0.96,
	},
}

// Adapter implements stt.Adapter with mock responses.
type Adapter struct {
	mu            sync.Mutex
	cb            stt.Callback
	audioReceived int
	utterance     SimulatedUtterance
	partialIndex  int
	finalSent     bool
	closed        bool
	delay         time.Duration
}

// utteranceCounter tracks which default utterance to use next.
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// New creates a mock adapter cycling through DefaultUtterances.
func New() *Adapter {
	counterMu.Lock()
	idx := utteranceCounter % len(DefaultUtterances)
	utteranceCounter++
	counterMu.Unlock()

	return NewWithUtterance(DefaultUtterances[idx])
}

// NewWithUtterance creates a mock adapter that recognises utt.
func NewWithUtterance(utt SimulatedUtterance) *Adapter {
	return &Adapter{
		utterance: utt,
		delay:     50 * time.Millisecond,
	}
}

// Start begins a mock transcription session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

// SendAudio emits one partial per audio chunk. Once the partials run out the
// next chunk completes the utterance, like silence detection would.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}
	a.audioReceived++

	if a.partialIndex < len(a.utterance.Partials) {
		partial := a.utterance.Partials[a.partialIndex]
		a.partialIndex++
		a.later(a.delay, func(cb stt.Callback) {
			cb.OnPartial(partial)
		})
	} else if !a.finalSent {
		a.finalSent = true
		utt := a.utterance
		a.later(2*a.delay, func(cb stt.Callback) {
			cb.OnFinal(utt.Final, utt.Confidence)
			cb.OnEndOfUtterance()
		})
	}
	return nil
}

// Close ends the mock session. A final that was never sent is flushed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	if !a.finalSent && a.cb != nil {
		a.finalSent = true
		cb := a.cb
		utt := a.utterance
		go func() {
			time.Sleep(2 * a.delay)
			cb.OnFinal(utt.Final, utt.Confidence)
		}()
	}
	a.closed = true
	return nil
}

// later runs fn after d unless the adapter was closed. Callbacks run
// without the adapter lock held. Caller holds a.mu.
func (a *Adapter) later(d time.Duration, fn func(cb stt.Callback)) {
	go func() {
		time.Sleep(d)
		a.mu.Lock()
		cb, closed := a.cb, a.closed
		a.mu.Unlock()
		if !closed && cb != nil {
			fn(cb)
		}
	}()
}
