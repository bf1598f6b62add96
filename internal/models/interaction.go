// Package models defines the interaction events emitted by the kiosk.
package models

const (
	EventTypeStateChanged = "kiosk.interaction.state"
	EventTypeAnswer       = "kiosk.interaction.answer"
)

// PersonBox is a detected visitor as shown on the panel overlay.
type PersonBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Score  float64 `json:"score"`
	Close  bool    `json:"close"`
}

// StateChanged is emitted whenever the interaction state or the presence
// snapshot shown to the visitor changes.
type StateChanged struct {
	EventType        string      `json:"eventType"`
	KioskID          string      `json:"kioskId"`
	Timestamp        int64       `json:"timestamp"`
	PreviousState    string      `json:"previousState,omitempty"`
	State            string      `json:"state"`
	PersonCount      int         `json:"personCount"`
	AnyClose         bool        `json:"anyClose"`
	Cooldown         bool        `json:"cooldown"`
	WelcomeTriggered bool        `json:"welcomeTriggered"`
	Response         string      `json:"response,omitempty"`
	Transcript       string      `json:"transcript,omitempty"`
	Persons          []PersonBox `json:"persons,omitempty"`
}

// AnswerDispatched is emitted when a final transcript has been answered.
type AnswerDispatched struct {
	EventType    string  `json:"eventType"`
	KioskID      string  `json:"kioskId"`
	Timestamp    int64   `json:"timestamp"`
	TranscriptID string  `json:"transcriptId"`
	Query        string  `json:"query"`
	Kind         string  `json:"kind"`
	Answer       string  `json:"answer"`
	Score        float64 `json:"score,omitempty"`
	EntryIndex   int     `json:"entryIndex"`
}
