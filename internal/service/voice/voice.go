// Package voice defines the speech I/O boundary of the kiosk: speech
// synthesis out, speech recognition in.
package voice

import (
	"context"
	"errors"
)

var (
	// ErrNoClient is returned when no panel is connected to render audio.
	ErrNoClient = errors.New("no voice client connected")
	// ErrRecognitionUnavailable is returned when the microphone or the
	// recognition service cannot be used on this panel.
	ErrRecognitionUnavailable = errors.New("speech recognition unavailable")
	// ErrInsecureContext is returned when the panel is not served over HTTPS
	// or localhost.
	ErrInsecureContext = errors.New("voice requires a secure context")
)

// Adapter issues speech commands. Only one utterance plays at a time: a new
// Speak cancels the one in flight. StartListening while listening and
// StopListening while stopped are no-ops.
type Adapter interface {
	Speak(ctx context.Context, text string) error
	StartListening(ctx context.Context) error
	StopListening(ctx context.Context) error
}

// Events receives everything the speech engines report. Adapter failures
// arrive here as events; they never surface as panics.
type Events interface {
	OnSpeechStart()
	OnSpeechEnd()
	OnSpeechError(err error)
	OnTranscriptUpdate(text string)
	OnTranscriptFinal(text string)
	OnRecognitionError(code string)
}

// Options carries the synthesis hints sent with every utterance.
type Options struct {
	Language string
	Voice    string
	Rate     float64
	Pitch    float64
}

// DefaultOptions returns US English at normal rate and pitch.
func DefaultOptions() Options {
	return Options{Language: "en-US", Rate: 1.0, Pitch: 1.0}
}
