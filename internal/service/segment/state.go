// Package segment provides the transcript segment value type, utterance ID
// generation and the per-session utterance lifecycle.
package segment

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of the utterance tracker.
type State int

const (
	// StateAwaiting - No utterance in progress; the next result opens one.
	StateAwaiting State = iota
	// StateInterim - Interim results seen for the current utterance.
	StateInterim
	// StateClosed - Session ended normally. Terminal.
	StateClosed
	// StateDropped - Session ended by an engine error; the utterance in
	// progress never received its final. Terminal.
	StateDropped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateAwaiting:
		return "AWAITING"
	case StateInterim:
		return "INTERIM"
	case StateClosed:
		return "CLOSED"
	case StateDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (CLOSED or DROPPED).
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateDropped
}

// Errors for results arriving after the tracker is terminal.
var (
	ErrTrackerClosed    = errors.New("utterance tracker is closed")
	ErrUtteranceDropped = errors.New("utterance tracker was dropped")
)

// Tracker assigns utterance IDs to recognition results of one session.
// Safe for concurrent use.
//
// State transitions:
//
//	AWAITING ── Interim() ──→ INTERIM ── Interim() ──→ INTERIM
//	    │                        │
//	    └──── Final() ───────────┴── Final() ──→ AWAITING (next utterance)
//
//	any ── Close() ──→ CLOSED      non-terminal ── Drop() ──→ DROPPED
//
// Interims of one utterance share its ID and replace each other; the final
// for that utterance carries the same ID and is emitted exactly once.
type Tracker struct {
	mu         sync.RWMutex
	sessionID  string
	gen        *Generator
	current    string
	state      State
	utterances int
}

// NewTracker creates a tracker in AWAITING state.
func NewTracker(sessionID string) *Tracker {
	return &Tracker{
		sessionID: sessionID,
		gen:       NewGenerator(),
		state:     StateAwaiting,
	}
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Current returns the ID of the utterance in progress, or "".
func (t *Tracker) Current() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Utterances returns the number of utterances that received a final.
func (t *Tracker) Utterances() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.utterances
}

// Interim records an interim result and returns its utterance ID.
func (t *Tracker) Interim() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.terminalErr(); err != nil {
		return "", err
	}
	if t.state == StateAwaiting {
		t.current = t.gen.Next(t.sessionID)
		t.state = StateInterim
	}
	return t.current, nil
}

// Final records the final result of the utterance in progress (opening one
// if no interim preceded it) and returns its ID. The tracker moves on to
// await the next utterance.
func (t *Tracker) Final() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.terminalErr(); err != nil {
		return "", err
	}
	id := t.current
	if t.state == StateAwaiting {
		id = t.gen.Next(t.sessionID)
	}
	t.current = ""
	t.state = StateAwaiting
	t.utterances++
	return id, nil
}

// Close transitions to CLOSED. Idempotent; a dropped tracker stays dropped.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateDropped {
		return
	}
	t.state = StateClosed
	t.current = ""
}

// Drop abandons the utterance in progress. Returns false if the tracker was
// already terminal.
func (t *Tracker) Drop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		return false
	}
	t.state = StateDropped
	t.current = ""
	return true
}

func (t *Tracker) terminalErr() error {
	switch t.state {
	case StateClosed:
		return ErrTrackerClosed
	case StateDropped:
		return ErrUtteranceDropped
	}
	return nil
}
