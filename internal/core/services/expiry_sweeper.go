package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/ports"
)

const sweeperLeaseKey = "lease:expiry-sweeper"

type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
	// Lease is how long one replica owns a sweep. Zero disables the lease.
	Lease time.Duration
}

type SweepStats struct {
	Expired int
	Skipped int
	Failed  int
}

// ExpirySweeper periodically expires PENDING reservations whose hold window has passed.
type ExpirySweeper struct {
	service      *ReservationService
	reservations ports.ReservationRepository
	locker       ports.Locker
	cfg          SweeperConfig
	opts         options
}

func NewExpirySweeper(service *ReservationService, reservations ports.ReservationRepository, locker ports.Locker, cfg SweeperConfig, opts ...Option) *ExpirySweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &ExpirySweeper{
		service:      service,
		reservations: reservations,
		locker:       locker,
		cfg:          cfg,
		opts:         buildOptions(opts),
	}
}

func (s *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.opts.log.Info().Dur("interval", s.cfg.Interval).Int("batch_size", s.cfg.BatchSize).Msg("expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.opts.log.Info().Msg("expiry sweeper stopped")
			return nil
		case <-ticker.C:
			s.drain(ctx)
		}
	}
}

// drain keeps sweeping while batches come back full.
func (s *ExpirySweeper) drain(ctx context.Context) {
	for ctx.Err() == nil {
		stats, err := s.SweepOnce(ctx)
		if err != nil {
			s.opts.log.Error().Err(err).Msg("expiry sweep failed")
			return
		}
		if stats.Expired < s.cfg.BatchSize {
			return
		}
	}
}

// SweepOnce expires one batch of overdue reservations. A failure on one
// reservation is logged and counted; the batch carries on and the row is
// picked up again by the next sweep.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	if s.locker != nil && s.cfg.Lease > 0 {
		acquired, err := s.locker.Acquire(ctx, sweeperLeaseKey, s.cfg.Lease)
		switch {
		case err != nil:
			s.opts.log.Warn().Err(err).Msg("sweeper lease unavailable, sweeping anyway")
		case !acquired:
			s.opts.log.Debug().Msg("another replica holds the sweeper lease")
			return stats, nil
		default:
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), sweeperLeaseKey); err != nil {
					s.opts.log.Warn().Err(err).Msg("failed to release sweeper lease")
				}
			}()
		}
	}

	now := s.opts.clock.Now()

	var expired []uuid.UUID
	err := s.opts.withRetry(ctx, func(ctx context.Context) error {
		var err error
		expired, err = s.reservations.ListExpired(ctx, now, s.cfg.BatchSize)
		return err
	})
	if err != nil {
		return stats, err
	}
	if len(expired) == 0 {
		return stats, nil
	}

	s.opts.log.Info().Int("count", len(expired)).Msg("found expired reservations, releasing holds")

	for _, id := range expired {
		if _, err := s.service.Expire(ctx, id); err != nil {
			if IsBenign(err) {
				stats.Skipped++
				continue
			}
			stats.Failed++
			s.opts.log.Error().Err(err).Str("reservation_id", id.String()).Msg("failed to expire reservation")
			continue
		}
		stats.Expired++
	}

	s.opts.metrics.Swept("expired", stats.Expired)
	s.opts.metrics.Swept("skipped", stats.Skipped)
	s.opts.metrics.Swept("failed", stats.Failed)

	return stats, nil
}
