package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"ai-speech-session-service/internal/models"
	"ai-speech-session-service/internal/observability/metrics"
	"ai-speech-session-service/internal/schema"
)

// Publisher forwards bus events to Kafka: interim segments to the partial
// topic, final segments and session status changes to the final topic.
// When disabled it only logs.
type Publisher struct {
	writerPartial *kafka.Writer
	writerFinal   *kafka.Writer
	principal     string
	topicPartial  string
	topicFinal    string
	enabled       bool
	timeout       time.Duration
	validator     *schema.Validator
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
	Enabled      bool
}

// NewPublisher creates a Kafka publisher with separate topics for interim
// and final transcripts.
func NewPublisher(cfg *Config, logger zerolog.Logger, m *metrics.Metrics) *Publisher {
	logger = logger.With().Str("component", "kafka-publisher").Logger()
	p := &Publisher{
		timeout:   5 * time.Second,
		validator: schema.New(),
		logger:    logger,
		metrics:   m,
	}

	if cfg == nil {
		logger.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return p
	}

	p.principal = cfg.Principal
	p.topicPartial = cfg.TopicPartial
	p.topicFinal = cfg.TopicFinal

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerPartial = newWriter(cfg.Brokers, cfg.TopicPartial, transport)
	p.writerFinal = newWriter(cfg.Brokers, cfg.TopicFinal, transport)
	p.enabled = true

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // one session stays on one partition
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// Attach subscribes the publisher to bus.
func (p *Publisher) Attach(bus *Bus) (unsubscribe func()) {
	return bus.Subscribe(p.Handle)
}

// Handle publishes one bus event. Publish failures are logged; they never
// reach the emitting engine.
func (p *Publisher) Handle(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var err error
	switch ev.Kind {
	case SegmentReceived:
		wire := models.FromSegment(ev.Mode, ev.Segment)
		if ev.Segment.IsFinal {
			err = p.PublishFinal(ctx, ev.SessionID, wire)
		} else {
			err = p.PublishPartial(ctx, ev.SessionID, wire)
		}
	case SessionStarted, SessionCompleted, ErrorOccurred:
		err = p.PublishFinal(ctx, ev.SessionID, sessionStatus(ev))
	}
	if err != nil {
		p.logger.Warn().Err(err).
			Str("event", ev.Kind.String()).
			Str("sessionId", ev.SessionID).
			Msg("Failed to publish event")
	}
}

func sessionStatus(ev Event) models.SessionStatus {
	st := models.SessionStatus{
		EventType: models.EventTypeSession,
		SessionID: ev.SessionID,
		Mode:      ev.Mode,
		Timestamp: ev.Time.UnixMilli(),
	}
	switch ev.Kind {
	case SessionStarted:
		st.Status = "started"
	case ErrorOccurred:
		st.Status = "error"
	case SessionCompleted:
		st.Status = "completed"
		if ev.Err != nil {
			st.Status = "failed"
		}
	}
	if ev.Err != nil {
		st.Error = ev.Err.Error()
	}
	return st
}

// PublishPartial publishes an interim transcript event to the partial topic.
func (p *Publisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerPartial, p.topicPartial, "interim", key, event)
}

// PublishFinal publishes a final transcript or session event to the final topic.
func (p *Publisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerFinal, p.topicFinal, "final", key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	if err := p.validator.Validate(event); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	p.logger.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerPartial != nil {
		if e := p.writerPartial.Close(); e != nil {
			p.logger.Error().Err(e).Msg("Error closing partial writer")
			err = e
		}
	}
	if p.writerFinal != nil {
		if e := p.writerFinal.Close(); e != nil {
			p.logger.Error().Err(e).Msg("Error closing final writer")
			err = e
		}
	}
	return err
}
