package bridge

import "expo-kiosk-service/internal/models"

// Message types sent to the panel.
const (
	TypeSpeak          = "speak"
	TypeStartListening = "start_listening"
	TypeStopListening  = "stop_listening"
	TypeAlert          = "alert"
	TypeState          = "state"
)

// Message types sent by the panel.
const (
	TypeHello            = "hello"
	TypeSpeechStart      = "speech_start"
	TypeSpeechEnd        = "speech_end"
	TypeSpeechError      = "speech_error"
	TypeTranscript       = "transcript"
	TypeRecognitionEnd   = "recognition_end"
	TypeRecognitionError = "recognition_error"
)

// Listening modes announced in start_listening.
const (
	ModeBrowser = "browser" // the panel runs recognition and sends transcripts
	ModeStream  = "stream"  // the panel streams microphone audio as binary frames
)

// Message is the JSON envelope exchanged with the panel. Binary frames carry
// raw microphone audio and never use this envelope.
type Message struct {
	Type string `json:"type"`

	// speak, alert, transcript
	Text        string  `json:"text,omitempty"`
	UtteranceID string  `json:"utteranceId,omitempty"`
	Language    string  `json:"language,omitempty"`
	Voice       string  `json:"voice,omitempty"`
	Rate        float64 `json:"rate,omitempty"`
	Pitch       float64 `json:"pitch,omitempty"`

	// start_listening
	Continuous bool   `json:"continuous,omitempty"`
	Mode       string `json:"mode,omitempty"`

	// transcript
	Final bool `json:"final,omitempty"`

	// speech_error, recognition_error
	Error string `json:"error,omitempty"`

	// hello
	SecureContext        *bool `json:"secureContext,omitempty"`
	RecognitionSupported *bool `json:"recognitionSupported,omitempty"`
	MicrophoneAvailable  *bool `json:"microphoneAvailable,omitempty"`

	// state
	State *models.StateChanged `json:"state,omitempty"`
}
