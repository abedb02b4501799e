package portaudio

import (
	"ai-speech-session-service/internal/service/audio"
)

// Opener opens PortAudio sources for microphone and loopback devices and
// WAV sources for files.
type Opener struct {
	FramesPerBuffer int
}

func (o Opener) Open(dev audio.Device) (audio.Source, error) {
	if dev.Kind == audio.File || !dev.Configured() {
		return audio.FileOpener{FramesPerBuffer: o.FramesPerBuffer}.Open(dev)
	}
	return NewSource(dev.ID, o.FramesPerBuffer), nil
}
