package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestFactory_Create(t *testing.T) {
	f := NewFactory(newHarness().deps)

	tests := []struct {
		mode Mode
		want string
	}{
		{Plain, "*engine.PlainAdapter"},
		{Diarized, "*engine.DiarizedAdapter"},
		{CaptureOnly, "*engine.CaptureOnlyAdapter"},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			a, err := f.Create(tt.mode, "sess")
			if err != nil {
				t.Fatalf("Create(%s): %v", tt.mode, err)
			}
			if got := fmt.Sprintf("%T", a); got != tt.want {
				t.Errorf("Create(%s) type = %s, want %s", tt.mode, got, tt.want)
			}
			if a.Mode() != tt.mode {
				t.Errorf("Mode() = %s, want %s", a.Mode(), tt.mode)
			}
			if a.State() != NotStarted {
				t.Errorf("new adapter state = %s, want NotStarted", a.State())
			}
		})
	}
}

func TestFactory_UnknownMode(t *testing.T) {
	f := NewFactory(newHarness().deps)
	for _, m := range []Mode{0, 4, -1} {
		a, err := f.Create(m, "sess")
		if a != nil {
			t.Errorf("Create(%d) returned an adapter", m)
		}
		if KindOf(err) != UnknownMode {
			t.Errorf("Create(%d) error = %v, want UnknownMode", m, err)
		}
	}
}

func TestFactory_FreshSpeakerMapPerSession(t *testing.T) {
	f := NewFactory(newHarness().deps)
	a1, _ := f.Create(Diarized, "s1")
	a2, _ := f.Create(Diarized, "s2")

	a1.(*DiarizedAdapter).resolver.Resolve("spk_9")
	if got := a2.(*DiarizedAdapter).resolver.Resolve("spk_1"); got != "Speaker 1" {
		t.Errorf("second session label = %q, want Speaker 1", got)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"1", Plain, false},
		{"2", Diarized, false},
		{"3", CaptureOnly, false},
		{"plain", Plain, false},
		{" Diarized ", Diarized, false},
		{"capture", CaptureOnly, false},
		{"4", 0, true},
		{"", 0, true},
		{"translate", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && KindOf(err) != UnknownMode {
				t.Errorf("expected UnknownMode, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestError_KindMatching(t *testing.T) {
	cause := errors.New("socket closed")
	err := NewError(EngineError, "stream broke", cause)

	if KindOf(err) != EngineError {
		t.Errorf("KindOf = %s", KindOf(err))
	}
	if !errors.Is(err, &Error{Kind: EngineError}) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(err, &Error{Kind: Cancelled}) {
		t.Error("errors.Is should not match a different kind")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be unwrappable")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("plain errors have no kind")
	}
	if ReasonOf(err) != "stream broke" || ReasonOf(nil) != "" {
		t.Error("unexpected ReasonOf")
	}
}
