package segment

import (
	"sync"
	"testing"
)

func TestTracker_InitialState(t *testing.T) {
	tr := NewTracker("sess-1")

	if tr.State() != StateAwaiting {
		t.Errorf("expected StateAwaiting, got %v", tr.State())
	}
	if tr.Current() != "" {
		t.Errorf("expected no current utterance, got %q", tr.Current())
	}
	if tr.Utterances() != 0 {
		t.Errorf("expected 0 utterances, got %d", tr.Utterances())
	}
}

func TestTracker_InterimsShareUtterance(t *testing.T) {
	tr := NewTracker("sess-1")

	first, err := tr.Interim()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		id, err := tr.Interim()
		if err != nil {
			t.Fatalf("interim %d: unexpected error: %v", i, err)
		}
		if id != first {
			t.Errorf("interim %d: expected utterance %s, got %s", i, first, id)
		}
	}
	if tr.State() != StateInterim {
		t.Errorf("expected StateInterim, got %v", tr.State())
	}

	final, err := tr.Final()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final != first {
		t.Errorf("expected final to close utterance %s, got %s", first, final)
	}
	if tr.State() != StateAwaiting {
		t.Errorf("expected StateAwaiting after final, got %v", tr.State())
	}
}

func TestTracker_NextUtteranceGetsNewID(t *testing.T) {
	tr := NewTracker("sess-1")

	a, _ := tr.Interim()
	tr.Final()
	b, _ := tr.Interim()

	if a == b {
		t.Errorf("expected a new utterance ID after final, got %s twice", a)
	}
	if tr.Utterances() != 1 {
		t.Errorf("expected 1 completed utterance, got %d", tr.Utterances())
	}
}

func TestTracker_FinalWithoutInterim(t *testing.T) {
	tr := NewTracker("sess-1")

	a, err := tr.Final()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := tr.Final()

	if a == "" || b == "" || a == b {
		t.Errorf("expected two distinct utterance IDs, got %q and %q", a, b)
	}
	if tr.Utterances() != 2 {
		t.Errorf("expected 2 utterances, got %d", tr.Utterances())
	}
}

func TestTracker_OperationsFailAfterClose(t *testing.T) {
	tr := NewTracker("sess-1")
	tr.Close()
	tr.Close()

	if _, err := tr.Interim(); err != ErrTrackerClosed {
		t.Errorf("Interim: expected ErrTrackerClosed, got %v", err)
	}
	if _, err := tr.Final(); err != ErrTrackerClosed {
		t.Errorf("Final: expected ErrTrackerClosed, got %v", err)
	}
	if tr.Drop() {
		t.Error("expected Drop to fail on a closed tracker")
	}
}

func TestTracker_Drop(t *testing.T) {
	tr := NewTracker("sess-1")
	tr.Interim()

	if !tr.Drop() {
		t.Fatal("expected Drop to succeed")
	}
	if tr.State() != StateDropped {
		t.Errorf("expected StateDropped, got %v", tr.State())
	}
	if _, err := tr.Final(); err != ErrUtteranceDropped {
		t.Errorf("expected ErrUtteranceDropped, got %v", err)
	}

	// close does not hide a drop
	tr.Close()
	if tr.State() != StateDropped {
		t.Errorf("expected StateDropped after Close, got %v", tr.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateAwaiting, "AWAITING"},
		{StateInterim, "INTERIM"},
		{StateClosed, "CLOSED"},
		{StateDropped, "DROPPED"},
		{State(99), "UNKNOWN(99)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := NewTracker("sess-1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.Interim()
		}()
		go func() {
			defer wg.Done()
			tr.Final()
		}()
	}
	wg.Wait()

	if tr.Utterances() != 50 {
		t.Errorf("expected 50 finals recorded, got %d", tr.Utterances())
	}
}
