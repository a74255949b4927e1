package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/ports"
)

type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
	// ClaimTimeout is how long a claimed batch is hidden from other relays.
	// A publish is cut off when it runs past its claim.
	ClaimTimeout time.Duration
}

// OutboxRelay publishes events written by committed transactions. Batches are
// claimed, published with no transaction open, then marked. A publish failure
// leaves the rows pending for the next poll.
type OutboxRelay struct {
	outbox    ports.OutboxRepository
	publisher ports.EventPublisher
	cfg       RelayConfig
	opts      options
}

func NewOutboxRelay(outbox ports.OutboxRepository, publisher ports.EventPublisher, cfg RelayConfig, opts ...Option) *OutboxRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 30 * time.Second
	}
	return &OutboxRelay{
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg,
		opts:      buildOptions(opts),
	}
}

func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.opts.log.Info().Dur("interval", r.cfg.Interval).Msg("outbox relay started")

	for {
		select {
		case <-ctx.Done():
			r.opts.log.Info().Msg("outbox relay stopped")
			return nil
		case <-ticker.C:
			for ctx.Err() == nil {
				n, err := r.RelayOnce(ctx)
				if err != nil {
					r.opts.log.Error().Err(err).Msg("outbox relay pass failed")
					break
				}
				if n < r.cfg.BatchSize {
					break
				}
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many messages it published.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	now := r.opts.clock.Now()

	var msgs []domain.OutboxMessage
	err := r.opts.withRetry(ctx, func(ctx context.Context) error {
		var err error
		msgs, err = r.outbox.ClaimPending(ctx, r.cfg.BatchSize, now, now.Add(r.cfg.ClaimTimeout))
		return err
	})
	if err != nil || len(msgs) == 0 {
		return 0, err
	}

	ids := messageIDs(msgs)

	publishCtx, cancel := context.WithTimeout(ctx, r.cfg.ClaimTimeout)
	publishErr := r.publisher.Publish(publishCtx, msgs...)
	cancel()

	// Marks are written even during shutdown so the batch does not sit out
	// its claim.
	markCtx := context.WithoutCancel(ctx)

	if publishErr != nil {
		r.opts.metrics.Outbox("failed", len(msgs))
		r.opts.log.Warn().Err(publishErr).Int("count", len(msgs)).Msg("failed to publish outbox batch")
		return 0, r.opts.withRetry(markCtx, func(ctx context.Context) error {
			return r.outbox.MarkFailed(ctx, ids, publishErr.Error())
		})
	}

	err = r.opts.withRetry(markCtx, func(ctx context.Context) error {
		return r.outbox.MarkPublished(ctx, ids, r.opts.clock.Now())
	})
	if err != nil {
		return 0, err
	}

	r.opts.metrics.Outbox("published", len(msgs))
	return len(msgs), nil
}

func messageIDs(msgs []domain.OutboxMessage) []uuid.UUID {
	ids := make([]uuid.UUID, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}
