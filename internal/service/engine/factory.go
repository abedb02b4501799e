package engine

import "fmt"

// Factory creates the adapter for a mode.
type Factory struct {
	deps Deps
}

func NewFactory(deps Deps) *Factory {
	return &Factory{deps: deps.withDefaults()}
}

// Create returns a new adapter for one session, or an UnknownMode error for
// a mode outside Plain, Diarized and CaptureOnly.
func (f *Factory) Create(mode Mode, sessionID string) (Adapter, error) {
	switch mode {
	case Plain:
		return NewPlainAdapter(sessionID, f.deps), nil
	case Diarized:
		return NewDiarizedAdapter(sessionID, f.deps), nil
	case CaptureOnly:
		return NewCaptureOnlyAdapter(sessionID, f.deps), nil
	default:
		return nil, NewError(UnknownMode, fmt.Sprintf("unknown mode %s", mode), nil)
	}
}
