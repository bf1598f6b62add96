// Package transcript tracks the live speech-recognition transcript of a
// listening session and its lifecycle.
package transcript

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// State represents the lifecycle state of a transcript.
type State int

const (
	// StateOpen - recognition is running, updates replace the text.
	StateOpen State = iota
	// StateFinal - the final text was taken for dispatch.
	StateFinal
	// StateClosed - transcript finished normally.
	StateClosed
	// StateDropped - abandoned without a final (error, limit, disconnect).
	StateDropped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateFinal:
		return "FINAL"
	case StateClosed:
		return "CLOSED"
	case StateDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// IsTerminal returns true for CLOSED and DROPPED.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateDropped
}

var (
	ErrClosed           = errors.New("transcript is closed")
	ErrAlreadyFinal     = errors.New("final already taken for this transcript")
	ErrUpdateAfterFinal = errors.New("cannot update transcript after final")
	ErrEmptyFinal       = errors.New("final transcript is empty")
)

// Transcript is the live recognition text plus its lifecycle.
//
//	OPEN -> FINAL -> CLOSED
//	  |
//	  +-> DROPPED
//
// Update may be called any number of times while OPEN. Finalize succeeds
// once. Reset starts a fresh OPEN transcript with empty text.
type Transcript struct {
	mu    sync.RWMutex
	id    string
	text  string
	state State
}

// New creates an OPEN transcript.
func New(id string) *Transcript {
	return &Transcript{id: id, state: StateOpen}
}

// ID returns the transcript ID.
func (t *Transcript) ID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.id
}

// State returns the current state.
func (t *Transcript) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Text returns the latest text.
func (t *Transcript) Text() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.text
}

// Update replaces the live text with an interim result.
func (t *Transcript) Update(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateOpen:
		t.text = text
		return nil
	case StateFinal:
		return ErrUpdateAfterFinal
	default:
		return ErrClosed
	}
}

// Finalize records the final text and moves to FINAL. The returned text is
// trimmed; blank finals are rejected and leave the transcript OPEN.
func (t *Transcript) Finalize(text string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateOpen:
	case StateFinal:
		return "", ErrAlreadyFinal
	default:
		return "", ErrClosed
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyFinal
	}
	t.text = text
	t.state = StateFinal
	return text, nil
}

// Close moves to CLOSED from any state. Idempotent.
func (t *Transcript) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateClosed
}

// Drop abandons the transcript without a final. Returns false if it was
// already terminal.
func (t *Transcript) Drop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		return false
	}
	t.state = StateDropped
	return true
}

// Reset clears the text and reopens under a new ID.
func (t *Transcript) Reset(newID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.id = newID
	t.text = ""
	t.state = StateOpen
}
