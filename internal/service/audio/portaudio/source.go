// Package portaudio captures microphone and loopback audio through
// PortAudio. It needs the PortAudio headers and cgo; the core audio package
// does not.
package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"ai-speech-session-service/internal/service/audio"
)

// DefaultFramesPerBuffer is 100ms at 16 kHz.
const DefaultFramesPerBuffer = 1600

// Source captures from a PortAudio input device.
type Source struct {
	deviceName      string
	framesPerBuffer int

	mu          sync.Mutex
	stream      *pa.Stream
	initialized bool
	running     bool
	closed      bool
	done        chan struct{}
}

// NewSource creates a source for the named device; "" or
// "default" selects the default input device.
func NewSource(deviceName string, framesPerBuffer int) *Source {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &Source{deviceName: deviceName, framesPerBuffer: framesPerBuffer}
}

// Start opens the input stream and delivers chunks from a capture goroutine.
func (s *Source) Start(ctx context.Context, onChunk func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return audio.ErrSourceClosed
	}
	if s.running {
		return errors.New("capture already running")
	}
	if !s.initialized {
		if err := pa.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
		s.initialized = true
	}

	buffer := make([]int16, s.framesPerBuffer)
	stream, err := s.openStream(buffer)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	s.stream = stream
	s.running = true
	s.done = make(chan struct{})
	go s.captureLoop(ctx, stream, buffer, onChunk, s.done)
	return nil
}

func (s *Source) openStream(buffer []int16) (*pa.Stream, error) {
	if s.deviceName == "" || s.deviceName == "default" {
		return pa.OpenDefaultStream(audio.Channels, 0, audio.SampleRate, len(buffer), buffer)
	}

	dev, err := findInputDevice(s.deviceName)
	if err != nil {
		return nil, err
	}
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: audio.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      audio.SampleRate,
		FramesPerBuffer: len(buffer),
	}
	return pa.OpenStream(params, buffer)
}

func findInputDevice(name string) (*pa.DeviceInfo, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", name)
}

func (s *Source) captureLoop(ctx context.Context, stream *pa.Stream, buffer []int16, onChunk func([]byte), done chan struct{}) {
	defer close(done)
	chunk := make([]byte, len(buffer)*audio.BytesPerSample)
	for {
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if !running {
			return
		}

		if err := stream.Read(); err != nil {
			// overflow or stream stopped underneath us
			continue
		}
		for i, v := range buffer {
			binary.LittleEndian.PutUint16(chunk[i*2:], uint16(v))
		}
		onChunk(chunk)
	}
}

// Stop stops the stream and waits for the capture goroutine.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stream, done := s.stream, s.done
	s.stream = nil
	s.mu.Unlock()

	err := stream.Stop()
	<-done
	if cerr := stream.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close stops capture and terminates PortAudio.
func (s *Source) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.initialized {
		s.initialized = false
		if err := pa.Terminate(); err != nil {
			return fmt.Errorf("failed to terminate PortAudio: %w", err)
		}
	}
	return nil
}

// InputDevice describes a capture device.
type InputDevice struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// ListInputDevices returns the available input devices.
func ListInputDevices() ([]InputDevice, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer pa.Terminate()

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	var defaultName string
	if def, err := pa.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	var inputs []InputDevice
	for _, dev := range devices {
		if dev.MaxInputChannels == 0 {
			continue
		}
		inputs = append(inputs, InputDevice{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefault:         dev.Name == defaultName,
		})
	}
	return inputs, nil
}
