// Package kafka moves reservation events out to Kafka and settlement
// outcomes in from it.
package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a writer that keys partitions by reservation id, so all
// events of one reservation stay ordered.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Publisher writes outbox messages to the events topic.
type Publisher struct {
	writer MessageWriter
	log    zerolog.Logger
}

func NewPublisher(writer MessageWriter, log zerolog.Logger) *Publisher {
	return &Publisher{writer: writer, log: log}
}

func (p *Publisher) Publish(ctx context.Context, msgs ...domain.OutboxMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	propagator := otel.GetTextMapPropagator()

	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		km := kafka.Message{
			Key:   []byte(m.AggregateID.String()),
			Value: m.Payload,
			Time:  m.CreatedAt,
			Headers: []kafka.Header{
				{Key: headerEventType, Value: []byte(m.EventType)},
			},
		}
		propagator.Inject(ctx, headerCarrier{headers: &km.Headers})
		out = append(out, km)
	}

	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		return errors.Wrapf(err, "write %d messages", len(out))
	}

	p.log.Debug().Int("count", len(out)).Msg("published reservation events")
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
