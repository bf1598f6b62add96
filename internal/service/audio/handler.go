// Package audio runs server-side recognition for panels that stream their
// microphone instead of recognising speech in the browser. A Handler sits
// between the STT adapter and the kiosk voice events.
package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"expo-kiosk-service/internal/observability/logging"
	"expo-kiosk-service/internal/observability/metrics"
	"expo-kiosk-service/internal/service/stt"
	"expo-kiosk-service/internal/service/transcript"
	"expo-kiosk-service/internal/service/voice"
	"expo-kiosk-service/internal/service/voice/bridge"
)

// Limits defines guardrails for a single utterance.
type Limits struct {
	MaxAudioBytes int64         // Max audio per utterance
	MaxDuration   time.Duration // Max utterance duration
	MaxPartials   int           // Max interim transcripts per utterance
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxAudioBytes: 5 * 1024 * 1024, // ~160 seconds at 16kHz 16-bit mono
		MaxDuration:   5 * time.Minute,
		MaxPartials:   500,
	}
}

// AdapterFactory creates a fresh STT adapter for one listening session.
type AdapterFactory func(ctx context.Context) (stt.Adapter, error)

// Handler manages one server-side recognition session.
// It implements stt.Callback and forwards results as voice events.
// Each utterance is tracked by a transcript so that at most one final
// is reported per utterance and nothing is reported after a drop.
type Handler struct {
	adapter      stt.Adapter
	events       voice.Events
	ids          *transcript.Generator
	connectionID string
	provider     string
	logger       zerolog.Logger
	metrics      *metrics.Metrics

	current *transcript.Transcript
	limits  Limits

	mu             sync.RWMutex
	startedAt      time.Time
	audioBytes     int64
	partialCount   int
	utteranceCount int
}

// NewHandler creates a handler with default limits.
func NewHandler(adapter stt.Adapter, events voice.Events, ids *transcript.Generator, connectionID, provider string) *Handler {
	return NewHandlerWithLimits(adapter, events, ids, connectionID, provider, DefaultLimits())
}

// NewHandlerWithLimits creates a handler with custom utterance limits.
func NewHandlerWithLimits(
	adapter stt.Adapter,
	events voice.Events,
	ids *transcript.Generator,
	connectionID, provider string,
	limits Limits,
) *Handler {
	if ids == nil {
		ids = transcript.NewGenerator()
	}
	id := ids.Next(connectionID)
	return &Handler{
		adapter:      adapter,
		events:       events,
		ids:          ids,
		connectionID: connectionID,
		provider:     provider,
		logger:       logging.WithListenSession(connectionID, id, provider),
		metrics:      metrics.DefaultMetrics,
		current:      transcript.New(id),
		limits:       limits,
		startedAt:    time.Now(),
	}
}

// Opener returns a bridge.AudioOpener that starts a handler per listening
// session. Transcript IDs are unique across sessions.
func Opener(newAdapter AdapterFactory, provider string, limits Limits) bridge.AudioOpener {
	ids := transcript.NewGenerator()
	return func(ctx context.Context, connectionID string, events voice.Events) (bridge.AudioStream, error) {
		adapter, err := newAdapter(ctx)
		if err != nil {
			return nil, fmt.Errorf("create %s adapter: %w", provider, err)
		}
		h := NewHandlerWithLimits(adapter, events, ids, connectionID, provider, limits)
		if err := h.Start(ctx); err != nil {
			_ = adapter.Close()
			return nil, fmt.Errorf("start %s session: %w", provider, err)
		}
		h.logger.Info().Msg("Server-side recognition started")
		return h, nil
	}
}

// Start begins the STT session with this handler as the callback receiver.
func (h *Handler) Start(ctx context.Context) error {
	return h.adapter.Start(ctx, h)
}

// SendAudio forwards audio to the STT adapter.
// Returns an error once a limit is exceeded; the utterance is dropped.
func (h *Handler) SendAudio(ctx context.Context, audio []byte) error {
	h.mu.Lock()
	h.audioBytes += int64(len(audio))
	currentBytes := h.audioBytes
	startedAt := h.startedAt
	h.mu.Unlock()

	if h.limits.MaxAudioBytes > 0 && currentBytes > h.limits.MaxAudioBytes {
		h.metrics.RecordLimitExceeded("audio_bytes")
		reason := fmt.Sprintf("max audio bytes exceeded: %d > %d", currentBytes, h.limits.MaxAudioBytes)
		h.Drop(reason)
		return fmt.Errorf("utterance limit exceeded: %s", reason)
	}

	if elapsed := time.Since(startedAt); h.limits.MaxDuration > 0 && elapsed > h.limits.MaxDuration {
		h.metrics.RecordLimitExceeded("duration")
		reason := fmt.Sprintf("max duration exceeded: %v > %v", elapsed, h.limits.MaxDuration)
		h.Drop(reason)
		return fmt.Errorf("utterance limit exceeded: %s", reason)
	}

	return h.adapter.SendAudio(ctx, audio)
}

// Close ends the STT session and closes the current transcript.
func (h *Handler) Close() error {
	h.current.Close()
	return h.adapter.Close()
}

// TranscriptID returns the ID of the utterance in progress.
func (h *Handler) TranscriptID() string {
	return h.current.ID()
}

// TranscriptState returns the lifecycle state of the utterance in progress.
func (h *Handler) TranscriptState() transcript.State {
	return h.current.State()
}

// UtteranceCount returns the number of completed utterances.
func (h *Handler) UtteranceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.utteranceCount
}

// --- stt.Callback implementation ---

// OnPartial forwards an interim transcript while the utterance is open.
func (h *Handler) OnPartial(text string) {
	if err := h.current.Update(text); err != nil {
		h.logger.Debug().Err(err).Str("state", h.current.State().String()).Msg("Partial ignored")
		return
	}

	h.mu.Lock()
	h.partialCount++
	count := h.partialCount
	h.mu.Unlock()

	if h.limits.MaxPartials > 0 && count > h.limits.MaxPartials {
		h.metrics.RecordLimitExceeded("partials")
		h.Drop(fmt.Sprintf("max partials exceeded: %d > %d", count, h.limits.MaxPartials))
		return
	}

	h.events.OnTranscriptUpdate(text)
}

// OnFinal forwards the final transcript. Only the first non-blank final of
// an utterance is reported.
func (h *Handler) OnFinal(text string, confidence float64) {
	final, err := h.current.Finalize(text)
	if err != nil {
		h.logger.Debug().Err(err).Str("state", h.current.State().String()).Msg("Final ignored")
		return
	}

	h.logger.Info().
		Str("transcriptId", h.current.ID()).
		Float64("confidence", confidence).
		Msg("Final transcript")
	h.metrics.RecordSTTUtterance()
	h.events.OnTranscriptFinal(final)
}

// OnEndOfUtterance closes the current transcript and opens the next one.
func (h *Handler) OnEndOfUtterance() {
	oldID := h.current.ID()
	oldState := h.current.State()
	h.current.Close()

	h.mu.Lock()
	h.utteranceCount++
	count := h.utteranceCount
	oldBytes, oldPartials := h.audioBytes, h.partialCount
	oldDuration := time.Since(h.startedAt)
	h.audioBytes = 0
	h.partialCount = 0
	h.startedAt = time.Now()
	h.mu.Unlock()

	newID := h.ids.Next(h.connectionID)
	h.current.Reset(newID)

	h.logger.Debug().
		Str("oldTranscriptId", oldID).
		Str("oldState", oldState.String()).
		Str("newTranscriptId", newID).
		Int("utterance", count).
		Int64("audioBytes", oldBytes).
		Int("partials", oldPartials).
		Dur("duration", oldDuration.Round(time.Millisecond)).
		Msg("End of utterance")
}

// OnError drops the current utterance and reports a network recognition
// error, which the kiosk treats as transient.
func (h *Handler) OnError(err error) {
	dropped := h.current.Drop()
	h.metrics.RecordSTTError(h.provider)
	h.logger.Warn().
		Err(err).
		Str("transcriptId", h.current.ID()).
		Bool("dropped", dropped).
		Msg("STT error, utterance dropped")
	h.events.OnRecognitionError(voice.CodeNetwork)
}

// Drop abandons the current utterance without a final.
// Returns false if it was already terminal.
func (h *Handler) Drop(reason string) bool {
	dropped := h.current.Drop()
	h.logger.Warn().
		Str("transcriptId", h.current.ID()).
		Str("reason", reason).
		Bool("dropped", dropped).
		Msg("Utterance dropped")
	return dropped
}

// IsDropped reports whether the current utterance was dropped.
func (h *Handler) IsDropped() bool {
	return h.current.State() == transcript.StateDropped
}

// UtteranceMetrics holds usage for the utterance in progress.
type UtteranceMetrics struct {
	AudioBytes   int64
	PartialCount int
	Duration     time.Duration
}

// UtteranceMetrics returns usage for the utterance in progress.
func (h *Handler) UtteranceMetrics() UtteranceMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return UtteranceMetrics{
		AudioBytes:   h.audioBytes,
		PartialCount: h.partialCount,
		Duration:     time.Since(h.startedAt),
	}
}

var _ bridge.AudioStream = (*Handler)(nil)
var _ stt.Callback = (*Handler)(nil)
