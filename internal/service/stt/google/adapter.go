// Package google provides a Google Cloud Speech-to-Text recognizer.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/durationpb"

	"ai-speech-session-service/internal/service/stt"
)

// Config holds the Google streaming recognition settings.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
	MinSpeakers    int32
	MaxSpeakers    int32
	APIKey         string
	Region         string
	// Endpoint overrides the regional endpoint derived from Region.
	Endpoint string
	// SpeechEndTimeout, when positive, lets the service end the stream
	// after that much silence.
	SpeechEndTimeout time.Duration
}

// DefaultConfig returns the settings used for 16 kHz mono capture.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
		MinSpeakers:    1,
		MaxSpeakers:    6,
	}
}

// parseAudioEncoding converts a string encoding name to the Google enum.
// Unknown names fall back to LINEAR16.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

func (c Config) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if c.APIKey != "" {
		opts = append(opts, option.WithAPIKey(c.APIKey))
	}
	switch {
	case c.Endpoint != "":
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	case c.Region != "":
		opts = append(opts, option.WithEndpoint(c.Region+"-speech.googleapis.com:443"))
	}
	return opts
}

// streamingConfig builds the first request of a stream.
func (c Config) streamingConfig(diarize bool) *speechpb.StreamingRecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		Encoding:                   parseAudioEncoding(c.AudioEncoding),
		SampleRateHertz:            c.SampleRateHz,
		LanguageCode:               c.LanguageCode,
		EnableAutomaticPunctuation: true,
	}
	if diarize {
		rc.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          c.MinSpeakers,
			MaxSpeakerCount:          c.MaxSpeakers,
		}
	}
	sc := &speechpb.StreamingRecognitionConfig{
		Config:         rc,
		InterimResults: c.InterimResults,
	}
	// the service closes the stream after this much silence, which ends the
	// session; off unless configured
	if c.SpeechEndTimeout > 0 {
		sc.EnableVoiceActivityEvents = true
		sc.VoiceActivityTimeout = &speechpb.StreamingRecognitionConfig_VoiceActivityTimeout{
			SpeechEndTimeout: durationpb.New(c.SpeechEndTimeout),
		}
	}
	return sc
}

// Factory returns an stt.Factory dialing Google for every session.
func Factory(cfg Config) stt.Factory {
	return func(ctx context.Context, opts stt.Options) (stt.Recognizer, error) {
		return New(ctx, cfg, opts)
	}
}

// Recognizer implements stt.Recognizer using Google Cloud Speech-to-Text.
type Recognizer struct {
	cfg     Config
	diarize bool
	client  *speech.Client

	mu      sync.Mutex
	stream  speechpb.Speech_StreamingRecognizeClient
	cb      stt.Callback
	stopped bool
	done    chan struct{}
}

// New dials the speech service. Credentials come from cfg.APIKey or, when
// empty, application default credentials.
func New(ctx context.Context, cfg Config, opts stt.Options) (*Recognizer, error) {
	c, err := speech.NewClient(ctx, cfg.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Recognizer{
		cfg:     cfg,
		diarize: opts.Diarization,
		client:  c,
		done:    make(chan struct{}),
	}, nil
}

// Start opens the stream, sends the streaming config and starts listening.
func (r *Recognizer) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := r.client.StreamingRecognize(ctx)
	if err != nil {
		return err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: r.cfg.streamingConfig(r.diarize),
		},
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.stream = stream
	r.cb = cb
	r.mu.Unlock()

	go r.listen(stream, cb)
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (r *Recognizer) SendAudio(ctx context.Context, audio []byte) error {
	r.mu.Lock()
	stream, stopped := r.stream, r.stopped
	r.mu.Unlock()
	if stream == nil || stopped {
		return nil
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Stop half-closes the stream and waits for the remaining results to be
// delivered.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	stream := r.stream
	r.mu.Unlock()

	var err error
	if stream != nil {
		err = stream.CloseSend()
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
		}
	}
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// listen receives responses until the stream ends. io.EOF means the service
// ended the stream normally.
func (r *Recognizer) listen(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback) {
	defer close(r.done)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			cb.OnCancelled(nil)
			return
		}
		if err != nil {
			cb.OnCancelled(err)
			return
		}
		if resp.Error != nil && resp.Error.Code != 0 {
			cb.OnCancelled(fmt.Errorf("speech service error %d: %s", resp.Error.Code, resp.Error.Message))
			return
		}
		dispatch(resp, cb, r.diarize)
	}
}

func dispatch(resp *speechpb.StreamingRecognizeResponse, cb stt.Callback, diarize bool) {
	for _, res := range resp.Results {
		if len(res.Alternatives) == 0 {
			continue
		}
		alt := res.Alternatives[0]
		var speakerID string
		if diarize {
			speakerID = dominantSpeaker(alt.Words)
		}
		if res.IsFinal {
			cb.OnFinal(alt.Transcript, speakerID)
		} else {
			cb.OnInterim(alt.Transcript, speakerID)
		}
	}
}

// dominantSpeaker returns the speaker tag covering the most words, or ""
// when no word is tagged.
func dominantSpeaker(words []*speechpb.WordInfo) string {
	counts := make(map[int32]int)
	var best int32
	for _, w := range words {
		tag := w.GetSpeakerTag()
		if tag == 0 {
			continue
		}
		counts[tag]++
		if best == 0 || counts[tag] > counts[best] {
			best = tag
		}
	}
	if best == 0 {
		return ""
	}
	return strconv.Itoa(int(best))
}
