// Package schema validates interaction events before they leave the process.
package schema

import (
	"errors"
	"fmt"

	"expo-kiosk-service/internal/models"
)

// ErrInvalidEvent wraps every validation failure.
var ErrInvalidEvent = errors.New("invalid event")

var validStates = map[string]bool{
	"IDLE":      true,
	"WELCOMING": true,
	"LISTENING": true,
	"SPEAKING":  true,
}

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the required fields of a known event type.
func (v *Validator) Validate(event any) error {
	switch ev := event.(type) {
	case models.StateChanged:
		return v.validateState(ev)
	case *models.StateChanged:
		return v.validateState(*ev)
	case models.AnswerDispatched:
		return v.validateAnswer(ev)
	case *models.AnswerDispatched:
		return v.validateAnswer(*ev)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidEvent, event)
	}
}

func (v *Validator) validateState(ev models.StateChanged) error {
	if ev.EventType != models.EventTypeStateChanged {
		return fmt.Errorf("%w: eventType %q", ErrInvalidEvent, ev.EventType)
	}
	if err := requireCommon(ev.KioskID, ev.Timestamp); err != nil {
		return err
	}
	if !validStates[ev.State] {
		return fmt.Errorf("%w: state %q", ErrInvalidEvent, ev.State)
	}
	if ev.PreviousState != "" && !validStates[ev.PreviousState] {
		return fmt.Errorf("%w: previousState %q", ErrInvalidEvent, ev.PreviousState)
	}
	if ev.PersonCount < 0 {
		return fmt.Errorf("%w: negative personCount", ErrInvalidEvent)
	}
	if ev.AnyClose && ev.PersonCount == 0 {
		return fmt.Errorf("%w: anyClose without persons", ErrInvalidEvent)
	}
	return nil
}

func (v *Validator) validateAnswer(ev models.AnswerDispatched) error {
	if ev.EventType != models.EventTypeAnswer {
		return fmt.Errorf("%w: eventType %q", ErrInvalidEvent, ev.EventType)
	}
	if err := requireCommon(ev.KioskID, ev.Timestamp); err != nil {
		return err
	}
	if ev.Query == "" || ev.Answer == "" {
		return fmt.Errorf("%w: query and answer are required", ErrInvalidEvent)
	}
	if ev.Kind == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidEvent)
	}
	return nil
}

func requireCommon(kioskID string, ts int64) error {
	if kioskID == "" {
		return fmt.Errorf("%w: kioskId is required", ErrInvalidEvent)
	}
	if ts <= 0 {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	}
	return nil
}
