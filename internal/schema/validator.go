// Package schema validates outgoing transcript events before publication.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"ai-speech-session-service/internal/models"
)

var ErrInvalidEvent = errors.New("invalid event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the required fields of a wire event.
func (v *Validator) Validate(event any) error {
	switch ev := event.(type) {
	case models.TranscriptInterim:
		return requireFields(ev.EventType, models.EventTypeInterim, map[string]string{
			"sessionId":   ev.SessionID,
			"utteranceId": ev.UtteranceID,
		}, ev.Timestamp)
	case models.TranscriptFinal:
		if strings.TrimSpace(ev.Text) == "" {
			return fmt.Errorf("%w: final transcript has blank text", ErrInvalidEvent)
		}
		return requireFields(ev.EventType, models.EventTypeFinal, map[string]string{
			"sessionId":   ev.SessionID,
			"utteranceId": ev.UtteranceID,
		}, ev.Timestamp)
	case models.SessionStatus:
		return requireFields(ev.EventType, models.EventTypeSession, map[string]string{
			"sessionId": ev.SessionID,
			"status":    ev.Status,
		}, ev.Timestamp)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidEvent, event)
	}
}

func requireFields(eventType, want string, fields map[string]string, ts int64) error {
	if eventType != want {
		return fmt.Errorf("%w: eventType %q, want %q", ErrInvalidEvent, eventType, want)
	}
	for name, value := range fields {
		if value == "" {
			return fmt.Errorf("%w: missing %s", ErrInvalidEvent, name)
		}
	}
	if ts <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	return nil
}
