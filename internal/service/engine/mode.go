package engine

import (
	"fmt"
	"strings"
)

// Mode selects the adapter a session runs.
type Mode int

const (
	Plain Mode = iota + 1
	Diarized
	CaptureOnly
)

func (m Mode) String() string {
	switch m {
	case Plain:
		return "Plain"
	case Diarized:
		return "Diarized"
	case CaptureOnly:
		return "CaptureOnly"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	return m == Plain || m == Diarized || m == CaptureOnly
}

// ParseMode accepts the selector digits "1", "2", "3" and the names
// "plain", "diarized", "capture" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "plain":
		return Plain, nil
	case "2", "diarized", "diarization":
		return Diarized, nil
	case "3", "capture", "captureonly", "capture-only":
		return CaptureOnly, nil
	default:
		return 0, NewError(UnknownMode, fmt.Sprintf("unknown mode %q", s), nil)
	}
}

// State is the lifecycle state of an adapter run.
type State int

const (
	NotStarted State = iota
	AuthValidating
	Streaming
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case AuthValidating:
		return "AuthValidating"
	case Streaming:
		return "Streaming"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
