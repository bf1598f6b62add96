package kiosk

import (
	"fmt"
	"time"

	"expo-kiosk-service/internal/service/presence"
)

// State is the interaction state shown to the visitor.
type State int

const (
	StateIdle State = iota
	StateWelcoming
	StateListening
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWelcoming:
		return "WELCOMING"
	case StateListening:
		return "LISTENING"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// OrchestratorState is everything the interaction loop mutates. It is owned
// by the loop goroutine and never shared.
type OrchestratorState struct {
	State State

	// Cooldown is set on welcome and cleared by the hard or absence reset.
	Cooldown bool
	// WelcomeTriggered blocks a second welcome within one approach episode.
	WelcomeTriggered bool

	Presence      presence.Snapshot
	DetectorReady bool

	Response   string // last thing the kiosk said
	Transcript string // live recognition text

	WelcomedAt time.Time
}

// Status is a read-only copy of the interaction state.
type Status struct {
	KioskID          string            `json:"kioskId"`
	State            string            `json:"state"`
	Cooldown         bool              `json:"cooldown"`
	WelcomeTriggered bool              `json:"welcomeTriggered"`
	DetectorReady    bool              `json:"detectorReady"`
	Presence         presence.Snapshot `json:"presence"`
	Response         string            `json:"response,omitempty"`
	Transcript       string            `json:"transcript,omitempty"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}
