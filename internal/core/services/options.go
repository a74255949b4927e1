package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/clock"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/metrics"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/retry"
)

const (
	DefaultHoldDuration = 15 * time.Minute
	tracerName          = "reservation-engine/services"
)

type options struct {
	clock        clock.Clock
	log          zerolog.Logger
	metrics      *metrics.Metrics
	retry        retry.Policy
	holdDuration time.Duration
}

type Option func(*options)

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRetryPolicy overrides how transient store failures are retried. The
// policy's Retryable is always replaced by domain.IsTransient.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) { o.retry = p }
}

func WithHoldDuration(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.holdDuration = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		clock:        clock.NewSystem(),
		log:          zerolog.Nop(),
		retry:        retry.DefaultPolicy(nil),
		holdDuration: DefaultHoldDuration,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.retry.Retryable = domain.IsTransient
	return o
}

func (o options) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.DoNotify(ctx, o.retry, fn, func(err error, wait time.Duration) {
		o.metrics.StoreRetry()
		o.log.Warn().Err(err).Dur("backoff", wait).Msg("transient store error, retrying")
	})
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsTransient(err):
		return "transient"
	case errors.Is(err, domain.ErrInsufficientCapacity):
		return "insufficient_capacity"
	case errors.Is(err, domain.ErrAlreadyExpired):
		return "expired"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrReservationNotFound), errors.Is(err, domain.ErrUnitNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
