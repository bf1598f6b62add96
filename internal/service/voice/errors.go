package voice

import "fmt"

// ErrorClass groups recognition error codes by how the kiosk reacts.
type ErrorClass int

const (
	// ClassTransient - recognition stopped on its own; restart after a short delay.
	ClassTransient ErrorClass = iota
	// ClassUnavailable - recognition cannot work here; alert once, never restart.
	ClassUnavailable
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(c))
	}
}

// Recognition error codes reported by panels.
const (
	CodeNotAllowed          = "not-allowed"
	CodeServiceNotAllowed   = "service-not-allowed"
	CodeAudioCapture        = "audio-capture"
	CodeLanguageUnsupported = "language-not-supported"
	CodeNoSpeech            = "no-speech"
	CodeNetwork             = "network"
	CodeAborted             = "aborted"
	CodeInsecureContext     = "insecure-context"
	CodeUnsupported         = "not-supported"
)

// Classify maps a recognition error code to its class. Unknown codes are
// treated as transient.
func Classify(code string) ErrorClass {
	switch code {
	case CodeNotAllowed, CodeServiceNotAllowed, CodeAudioCapture,
		CodeLanguageUnsupported, CodeInsecureContext, CodeUnsupported:
		return ClassUnavailable
	default:
		return ClassTransient
	}
}

// AlertMessage is the visitor-facing text shown for an unavailable class code.
func AlertMessage(code string) string {
	switch code {
	case CodeInsecureContext:
		return "Voice features require HTTPS. Please deploy with SSL."
	case CodeNotAllowed, CodeServiceNotAllowed:
		return "Microphone access was denied. Please allow microphone access to talk to the kiosk."
	case CodeAudioCapture:
		return "No microphone was found. Please connect a microphone."
	case CodeUnsupported:
		return "This browser does not support speech recognition."
	default:
		return "Speech recognition is unavailable: " + code
	}
}
