// Package analytics publishes one event per answered search so query traffic
// can be aggregated elsewhere.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sphinxdocs/search-mcp/internal/config"
)

// SearchEvent describes one answered search.
type SearchEvent struct {
	Site      string    `json:"site"`
	Query     string    `json:"query"`
	Hits      int       `json:"hits"`
	LatencyMS float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Source    string    `json:"source"`
	At        time.Time `json:"at"`
}

// Publisher sends search events.
type Publisher interface {
	Publish(ctx context.Context, event SearchEvent) error
	Close() error
}

// New returns a Kafka publisher when analytics are enabled and a no-op
// publisher otherwise.
func New(cfg config.KafkaConfig, logger *slog.Logger) Publisher {
	if !cfg.Enabled {
		return Nop{}
	}
	return NewKafkaPublisher(cfg, logger)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, SearchEvent) error {
	return nil
}

func (Nop) Close() error {
	return nil
}

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON-encoded events to a Kafka topic, keyed by site.
type KafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher for cfg.Topic. Writes are async so a
// slow broker never delays a search response.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	l := logger.With("component", "kafka-publisher", "topic", cfg.Topic)
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				l.Error("failed to publish search events", "count", len(messages), "error", err)
			}
		},
	}
	return &KafkaPublisher{writer: w, logger: l}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event SearchEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling search event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Site),
		Value: value,
		Time:  event.At,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("search event published", "site", event.Site, "value_size", len(value))
	return nil
}

// Close flushes pending writes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
