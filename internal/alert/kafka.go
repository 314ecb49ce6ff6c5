// Package alert pushes piracy findings onto a Kafka topic for downstream
// takedown tooling.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/marinewatch/marine/internal/logger"
)

// Publisher emits one alert per flagged match.
type Publisher interface {
	// PiracyFound reports that videoID matched the corpus entry at locator
	// with the given similarity score.
	PiracyFound(ctx context.Context, videoID, locator string, score float64) error
	Close() error
}

// KafkaPublisher writes alerts to a Kafka topic. Message values use the
// legacy takedown pipeline format "PiracyFound:<video_id>:<locator>:<score>"
// so existing consumers keep working.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
// Parameters:
//   - brokers: Kafka bootstrap addresses.
//   - topic: destination topic.
// Returns:
//   - *KafkaPublisher: configured publisher.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// PiracyFound publishes one alert message keyed by video ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - videoID: the analyzed video.
//   - locator: source locator of the matched corpus entry.
//   - score: similarity percentage.
// Returns:
//   - error: non-nil if the write fails; callers log and continue, a lost
//     alert never fails the analysis run.
func (p *KafkaPublisher) PiracyFound(ctx context.Context, videoID, locator string, score float64) error {
	msg := kafka.Message{
		Key:   []byte(videoID),
		Value: []byte(fmt.Sprintf("PiracyFound:%s:%s:%.2f", videoID, locator, score)),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish piracy alert: %w", err)
	}
	logger.CtxInfo(ctx, "Piracy alert published for video %s (score %.2f)", videoID, score)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when alerting is disabled.
type NoopPublisher struct{}

// PiracyFound does nothing.
func (NoopPublisher) PiracyFound(ctx context.Context, videoID, locator string, score float64) error {
	return nil
}

// Close does nothing.
func (NoopPublisher) Close() error { return nil }
