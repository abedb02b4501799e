package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// WAVFormat is the format block of a PCM WAV header.
type WAVFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// ReadWAVHeader reads and validates a canonical 44-byte PCM header. Only
// 16 kHz mono 16-bit PCM is accepted.
func ReadWAVHeader(r io.Reader) (WAVFormat, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return WAVFormat{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WAVFormat{}, errors.New("not a valid WAV file")
	}

	f := WAVFormat{
		AudioFormat:   binary.LittleEndian.Uint16(header[20:22]),
		Channels:      binary.LittleEndian.Uint16(header[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(header[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(header[34:36]),
	}
	if f.AudioFormat != 1 { // PCM
		return f, fmt.Errorf("only PCM format supported, got %d", f.AudioFormat)
	}
	if f.Channels != Channels || f.SampleRate != SampleRate || f.BitsPerSample != 8*BytesPerSample {
		return f, fmt.Errorf("unsupported WAV format: %d Hz, %d channels, %d bits (want %d Hz mono 16-bit)",
			f.SampleRate, f.Channels, f.BitsPerSample, SampleRate)
	}
	return f, nil
}

// WAVSource replays a PCM WAV file in real time.
type WAVSource struct {
	path      string
	chunkSize int

	mu      sync.Mutex
	file    *os.File
	stop    chan struct{}
	done    chan struct{}
	running bool
	closed  bool
}

// NewWAVSource opens path and validates its header. chunkSize is the number
// of bytes per delivered chunk.
func NewWAVSource(path string, chunkSize int) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open WAV file: %w", err)
	}
	if _, err := ReadWAVHeader(f); err != nil {
		f.Close()
		return nil, err
	}
	if chunkSize <= 0 {
		chunkSize = 3200 // 100ms
	}
	return &WAVSource{path: path, chunkSize: chunkSize, file: f}, nil
}

// Start streams the file on a goroutine, pacing chunks at playback speed.
// The source goes quiet at end of file; the session decides when to stop.
func (s *WAVSource) Start(ctx context.Context, onChunk func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSourceClosed
	}
	if s.running {
		return errors.New("WAV source already running")
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.file, onChunk, s.stop, s.done)
	return nil
}

func (s *WAVSource) loop(ctx context.Context, r io.Reader, onChunk func([]byte), stop, done chan struct{}) {
	defer close(done)

	interval := time.Duration(s.chunkSize) * time.Second / BytesPerSecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	buf := make([]byte, s.chunkSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}

		n, err := io.ReadFull(r, buf)
		if n > 0 {
			onChunk(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// Stop halts delivery and waits for the reader goroutine.
func (s *WAVSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	return nil
}

// Close stops the source and closes the file.
func (s *WAVSource) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
