// Package models defines the wire format of transcript events published to
// external consumers.
package models

import "ai-speech-session-service/internal/service/segment"

const (
	EventTypeInterim = "transcription.segment.interim"
	EventTypeFinal   = "transcription.segment.final"
	EventTypeSession = "transcription.session"
)

// TranscriptInterim represents an interim transcript result.
type TranscriptInterim struct {
	EventType   string `json:"eventType"`
	SessionID   string `json:"sessionId"`
	UtteranceID string `json:"utteranceId"`
	Mode        string `json:"mode"`
	Speaker     string `json:"speaker,omitempty"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
}

// TranscriptFinal represents a committed transcript result.
type TranscriptFinal struct {
	EventType   string `json:"eventType"`
	SessionID   string `json:"sessionId"`
	UtteranceID string `json:"utteranceId"`
	Mode        string `json:"mode"`
	Speaker     string `json:"speaker,omitempty"`
	Diarized    bool   `json:"diarized"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
}

// SessionStatus reports a session lifecycle change.
type SessionStatus struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
	Status    string `json:"status"` // started, completed, failed, error
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// FromSegment converts a segment into its wire event.
func FromSegment(mode string, seg segment.Segment) any {
	if seg.IsFinal {
		return TranscriptFinal{
			EventType:   EventTypeFinal,
			SessionID:   seg.SessionID,
			UtteranceID: seg.UtteranceID,
			Mode:        mode,
			Speaker:     seg.Speaker,
			Diarized:    seg.IsDiarized,
			Text:        seg.Text,
			Timestamp:   seg.Timestamp.UnixMilli(),
		}
	}
	return TranscriptInterim{
		EventType:   EventTypeInterim,
		SessionID:   seg.SessionID,
		UtteranceID: seg.UtteranceID,
		Mode:        mode,
		Speaker:     seg.Speaker,
		Text:        seg.Text,
		Timestamp:   seg.Timestamp.UnixMilli(),
	}
}
