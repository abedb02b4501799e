// Package vad classifies captured audio with the WebRTC voice activity
// detector (cgo).
package vad

import (
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"ai-speech-session-service/internal/service/audio"
)

// frameBytes is one 10ms frame at the capture sample rate.
const frameBytes = audio.SampleRate / 100 * audio.BytesPerSample

// WebRTCDetector implements audio.VoiceDetector with WebRTC's VAD.
type WebRTCDetector struct {
	mu  sync.Mutex
	vad *webrtcvad.VAD
}

// NewWebRTCDetector creates a detector with aggressiveness mode 0-3.
func NewWebRTCDetector(mode int) (*WebRTCDetector, error) {
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC VAD: %w", err)
	}
	if mode < 0 {
		mode = 0
	}
	if mode > 3 {
		mode = 3
	}
	if err := vad.SetMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set VAD mode: %w", err)
	}
	return &WebRTCDetector{vad: vad}, nil
}

// VoicedBytes processes the chunk in 10ms frames. A trailing partial frame
// is ignored.
func (d *WebRTCDetector) VoicedBytes(chunk []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	voiced := 0
	for i := 0; i+frameBytes <= len(chunk); i += frameBytes {
		active, err := d.vad.Process(audio.SampleRate, chunk[i:i+frameBytes])
		if err != nil {
			return voiced, fmt.Errorf("VAD processing failed: %w", err)
		}
		if active {
			voiced += frameBytes
		}
	}
	return voiced, nil
}
