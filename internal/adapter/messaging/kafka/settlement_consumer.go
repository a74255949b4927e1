package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/services"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type SettlementHandler interface {
	OnSettlement(ctx context.Context, outcome domain.SettlementOutcome) (*services.SettlementResult, error)
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
}

type ConsumerConfig struct {
	// RetryInitial and RetryMax bound the backoff between attempts at a
	// message that keeps failing with a transient error.
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// SettlementConsumer feeds settlement outcomes from the payment provider
// into the coordinator. An offset is committed only after its message was
// applied, replayed or found to be unprocessable.
type SettlementConsumer struct {
	reader  MessageReader
	handler SettlementHandler
	cfg     ConsumerConfig
	log     zerolog.Logger
}

func NewSettlementConsumer(reader MessageReader, handler SettlementHandler, cfg ConsumerConfig, log zerolog.Logger) *SettlementConsumer {
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 200 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 10 * time.Second
	}
	return &SettlementConsumer{reader: reader, handler: handler, cfg: cfg, log: log}
}

// Run consumes until ctx is cancelled.
func (c *SettlementConsumer) Run(ctx context.Context) error {
	c.log.Info().Msg("settlement consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info().Msg("settlement consumer stopped")
				return nil
			}
			c.log.Error().Err(err).Msg("fetch settlement message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("commit settlement message")
		}
	}
}

func (c *SettlementConsumer) Close() error {
	return c.reader.Close()
}

// process returns an error only when ctx ended while a transient failure
// was still being retried.
func (c *SettlementConsumer) process(ctx context.Context, msg kafka.Message) error {
	log := c.log.With().Int("partition", msg.Partition).Int64("offset", msg.Offset).Logger()

	outcome, err := decodeOutcome(msg)
	if err != nil {
		log.Error().Err(err).Msg("dropping undecodable settlement message")
		return nil
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &msg.Headers})

	var result *services.SettlementResult
	op := func() error {
		var err error
		result, err = c.handler.OnSettlement(ctx, outcome)
		if err != nil && !domain.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.RetryInitial
	exp.MaxInterval = c.cfg.RetryMax
	exp.MaxElapsedTime = 0

	err = backoff.RetryNotify(op, backoff.WithContext(exp, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("backoff", wait).Msg("settlement still failing, retrying")
	})

	switch {
	case err == nil:
		log.Info().
			Str("reservation_id", outcome.ReservationID.String()).
			Str("idempotency_key", outcome.IdempotencyKey).
			Bool("replayed", result.Replayed).
			Bool("applied", result.Record.Applied).
			Str("status", string(result.Record.ResultStatus)).
			Msg("settlement processed")
		return nil
	case domain.IsTransient(err):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		log.Error().Err(err).
			Str("reservation_id", outcome.ReservationID.String()).
			Str("idempotency_key", outcome.IdempotencyKey).
			Msg("settlement rejected")
		return nil
	}
}

// decodeOutcome reads the JSON body. The idempotency key may also travel
// as a header when the provider keeps it out of the payload.
func decodeOutcome(msg kafka.Message) (domain.SettlementOutcome, error) {
	var outcome domain.SettlementOutcome
	if err := json.Unmarshal(msg.Value, &outcome); err != nil {
		return outcome, err
	}
	if outcome.IdempotencyKey == "" {
		outcome.IdempotencyKey = header(msg, headerIdempotencyKey)
	}
	return outcome, outcome.Validate()
}
