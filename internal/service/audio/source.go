// Package audio captures PCM audio for recognition sessions. Every source
// produces mono 16-bit little-endian PCM at 16 kHz.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	SampleRate     = 16000
	Channels       = 1
	BytesPerSample = 2
	// BytesPerSecond of captured PCM.
	BytesPerSecond = SampleRate * Channels * BytesPerSample
)

// DeviceKind says where a device's audio comes from.
type DeviceKind int

const (
	Microphone DeviceKind = iota
	Loopback
	File
)

func (k DeviceKind) String() string {
	switch k {
	case Microphone:
		return "microphone"
	case Loopback:
		return "loopback"
	case File:
		return "file"
	default:
		return fmt.Sprintf("DeviceKind(%d)", int(k))
	}
}

// ParseDeviceKind accepts "microphone"/"mic", "loopback" and "file".
func ParseDeviceKind(s string) (DeviceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "microphone", "mic":
		return Microphone, nil
	case "loopback":
		return Loopback, nil
	case "file", "wav":
		return File, nil
	default:
		return Microphone, fmt.Errorf("unknown device kind %q", s)
	}
}

// Device identifies an audio input. For microphones and loopback devices ID
// is the capture device name ("default" selects the system default); for
// files it is the path.
type Device struct {
	ID   string
	Name string
	Kind DeviceKind
}

// Configured reports whether the device has been selected.
func (d Device) Configured() bool { return strings.TrimSpace(d.ID) != "" }

func (d Device) String() string {
	if d.Name != "" {
		return fmt.Sprintf("%s (%s)", d.Name, d.Kind)
	}
	return fmt.Sprintf("%s (%s)", d.ID, d.Kind)
}

// ErrSourceClosed is returned when a closed source is started again.
var ErrSourceClosed = errors.New("audio source closed")

// Source delivers captured PCM chunks to onChunk on its own goroutine until
// stopped. Chunks must not be retained after onChunk returns.
type Source interface {
	Start(ctx context.Context, onChunk func(chunk []byte)) error
	Stop() error
	Close() error
}

// VoiceDetector classifies a PCM chunk and returns how many of its bytes
// contain speech.
type VoiceDetector interface {
	VoicedBytes(chunk []byte) (int, error)
}

// Opener opens a Source for a device.
type Opener interface {
	Open(dev Device) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(dev Device) (Source, error)

func (f OpenerFunc) Open(dev Device) (Source, error) { return f(dev) }

// FileOpener opens WAV sources for file devices. Live capture lives in the
// portaudio subpackage.
type FileOpener struct {
	FramesPerBuffer int
}

func (o FileOpener) Open(dev Device) (Source, error) {
	if !dev.Configured() {
		return nil, errors.New("audio device not configured")
	}
	if dev.Kind != File {
		return nil, fmt.Errorf("no capture backend for %s devices", dev.Kind)
	}
	return NewWAVSource(dev.ID, o.FramesPerBuffer*BytesPerSample)
}
