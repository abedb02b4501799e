package segment

import (
	"sync"
	"testing"
	"time"
)

func TestGenerator_Next(t *testing.T) {
	gen := NewGenerator()

	if id := gen.Next("sess-1"); id != "sess-1-utt-1" {
		t.Errorf("expected 'sess-1-utt-1', got %s", id)
	}
	if id := gen.Next("sess-1"); id != "sess-1-utt-2" {
		t.Errorf("expected 'sess-1-utt-2', got %s", id)
	}
}

func TestGenerator_ThreadSafety(t *testing.T) {
	gen := NewGenerator()
	numGoroutines := 100
	resultsPerGoroutine := 10

	var wg sync.WaitGroup
	results := make(chan string, numGoroutines*resultsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < resultsPerGoroutine; j++ {
				results <- gen.Next("sess-concurrent")
			}
		}()
	}

	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for id := range results {
		if seen[id] {
			t.Errorf("duplicate utterance ID generated: %s", id)
		}
		seen[id] = true
	}

	if len(seen) != numGoroutines*resultsPerGoroutine {
		t.Errorf("expected %d unique IDs, got %d", numGoroutines*resultsPerGoroutine, len(seen))
	}
}

func TestSegment_IsBlank(t *testing.T) {
	tests := []struct {
		text  string
		blank bool
	}{
		{"", true},
		{"   ", true},
		{"\t\n", true},
		{"hello", false},
		{"  hi  ", false},
	}

	for _, tt := range tests {
		seg := Segment{Text: tt.text, Timestamp: time.Now()}
		if got := seg.IsBlank(); got != tt.blank {
			t.Errorf("IsBlank(%q) = %v, want %v", tt.text, got, tt.blank)
		}
	}
}

func TestSegment_String(t *testing.T) {
	if got := (Segment{Text: "hello"}).String(); got != "hello" {
		t.Errorf("expected plain text, got %q", got)
	}
	if got := (Segment{Text: "hello", Speaker: "Speaker 1"}).String(); got != "Speaker 1: hello" {
		t.Errorf("expected speaker prefix, got %q", got)
	}
}
