// Package events publishes interaction events to Kafka and fans them out
// inside the process.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"expo-kiosk-service/internal/models"
	"expo-kiosk-service/internal/observability/metrics"
	"expo-kiosk-service/internal/schema"
)

// Publisher publishes interaction events to separate Kafka topics.
type Publisher struct {
	writerState  *kafka.Writer
	writerAnswer *kafka.Writer
	principal    string
	topicState   string
	topicAnswer  string
	enabled      bool
	validator    *schema.Validator
	metrics      *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers     []string
	TopicState  string
	TopicAnswer string
	Principal   string
	Enabled     bool
}

// New creates a Kafka event publisher with separate topics for state changes and answers.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics
	v := schema.New()

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			validator: v,
			metrics:   m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:   cfg.Principal,
			topicState:  cfg.TopicState,
			topicAnswer: cfg.TopicAnswer,
			enabled:     false,
			validator:   v,
			metrics:     m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerState := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicState,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	writerAnswer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicAnswer,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicState", cfg.TopicState).
		Str("topicAnswer", cfg.TopicAnswer).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerState:  writerState,
		writerAnswer: writerAnswer,
		principal:    cfg.Principal,
		topicState:   cfg.TopicState,
		topicAnswer:  cfg.TopicAnswer,
		enabled:      true,
		validator:    v,
		metrics:      m,
	}
}

// PublishState publishes a state change keyed by kiosk.
func (p *Publisher) PublishState(ctx context.Context, ev models.StateChanged) error {
	if err := p.validator.Validate(ev); err != nil {
		log.Warn().Err(err).Msg("Dropping invalid state event")
		return err
	}
	return p.publish(ctx, p.writerState, p.topicState, "state", ev.KioskID, ev)
}

// PublishAnswer publishes a dispatched answer keyed by kiosk.
func (p *Publisher) PublishAnswer(ctx context.Context, ev models.AnswerDispatched) error {
	if err := p.validator.Validate(ev); err != nil {
		log.Warn().Err(err).Msg("Dropping invalid answer event")
		return err
	}
	return p.publish(ctx, p.writerAnswer, p.topicAnswer, "answer", ev.KioskID, ev)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
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
			{Key: "eventType", Value: []byte(topic)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
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
	if p.writerState != nil {
		if e := p.writerState.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing state writer")
			err = e
		}
	}
	if p.writerAnswer != nil {
		if e := p.writerAnswer.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing answer writer")
			err = e
		}
	}
	return err
}
