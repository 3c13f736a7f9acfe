package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"

	"camtrap/internal/events"
	"camtrap/internal/logging"
	"camtrap/internal/services"
)

// Publisher writes events to a topic through a synchronous producer.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewConfig returns the producer configuration used for event publishing.
func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "camtrap"
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	return cfg
}

// NewPublisher dials the brokers.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	brokers = cleanBrokers(brokers)
	if len(brokers) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "kafka", "connect", "at least one broker is required", nil)
	}
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewPublisherWithProducer(producer, topic, logger), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    strings.TrimSpace(topic),
		logger:   logging.NewComponentLogger(logger, "kafka"),
	}
}

func (p *Publisher) Name() string { return "kafka" }

// Handle sends one event. The producer is not context aware, so ctx is only
// checked before sending.
func (p *Publisher) Handle(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(ev.Kind)},
		},
	}
	if ev.CommandID != "" {
		msg.Key = sarama.StringEncoder(ev.CommandID)
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	p.logger.Debug("event published",
		logging.String("topic", p.topic),
		logging.String("kind", string(ev.Kind)),
		logging.Int("partition", int(partition)),
		logging.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

func cleanBrokers(brokers []string) []string {
	out := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
