package segment

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Segment is one unit of recognized speech. It is a plain value: once
// constructed it is never mutated and is handed to subscribers by copy.
type Segment struct {
	SessionID   string    `json:"sessionId"`
	UtteranceID string    `json:"utteranceId"`
	Text        string    `json:"text"`
	IsFinal     bool      `json:"isFinal"`
	Speaker     string    `json:"speaker,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	IsDiarized  bool      `json:"isDiarized"`
}

// IsBlank reports whether the segment carries no visible text.
func (s Segment) IsBlank() bool {
	return strings.TrimSpace(s.Text) == ""
}

// String renders the segment the way it appears in a transcript line.
func (s Segment) String() string {
	if s.Speaker == "" {
		return s.Text
	}
	return s.Speaker + ": " + s.Text
}

// Generator allocates utterance IDs scoped to a session.
type Generator struct {
	counter uint64
}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Next(sessionID string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-utt-%d", sessionID, n)
}
