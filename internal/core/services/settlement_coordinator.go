package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/ports"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/tracing"
)

const failedPaymentReason = "payment failed"

type SettlementResult struct {
	Record   domain.SettlementRecord
	Replayed bool
}

// SettlementCoordinator applies payment outcomes exactly once per idempotency key.
type SettlementCoordinator struct {
	tx           ports.Transactor
	settlements  ports.SettlementRepository
	reservations ports.ReservationRepository
	service      *ReservationService
	opts         options
}

func NewSettlementCoordinator(
	tx ports.Transactor,
	settlements ports.SettlementRepository,
	reservations ports.ReservationRepository,
	service *ReservationService,
	opts ...Option,
) *SettlementCoordinator {
	return &SettlementCoordinator{
		tx:           tx,
		settlements:  settlements,
		reservations: reservations,
		service:      service,
		opts:         buildOptions(opts),
	}
}

func (c *SettlementCoordinator) OnSettlement(ctx context.Context, outcome domain.SettlementOutcome) (_ *SettlementResult, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "SettlementCoordinator.OnSettlement")
	defer func() { tracing.End(span, err) }()

	if err := outcome.Validate(); err != nil {
		return nil, err
	}

	var (
		result  *SettlementResult
		eventID uuid.UUID
	)
	err = c.opts.withRetry(ctx, func(ctx context.Context) error {
		return c.tx.WithinTx(ctx, func(ctx context.Context) error {
			now := c.opts.clock.Now()
			record := &domain.SettlementRecord{
				IdempotencyKey: outcome.IdempotencyKey,
				ReservationID:  outcome.ReservationID,
				Outcome:        outcome.Outcome,
				Amount:         outcome.Amount,
				ProcessedAt:    now,
			}

			claimed, err := c.settlements.Claim(ctx, record)
			if err != nil {
				return err
			}
			if !claimed {
				stored, err := c.settlements.GetByKey(ctx, outcome.IdempotencyKey)
				if err != nil {
					return err
				}
				if stored.ReservationID != outcome.ReservationID {
					return domain.ErrIdempotencyConflict
				}
				result = &SettlementResult{Record: *stored, Replayed: true}
				return nil
			}

			res, err := c.reservations.GetForUpdate(ctx, outcome.ReservationID)
			if err != nil {
				return err
			}
			eventID = res.EventID

			switch outcome.Outcome {
			case domain.SettlementSuccess:
				err = c.applySuccess(ctx, res, record)
			case domain.SettlementFailure:
				err = c.applyFailure(ctx, res, record)
			}
			if err != nil {
				return err
			}

			record.ResultStatus = res.Status
			if err := c.settlements.Complete(ctx, record); err != nil {
				return err
			}

			result = &SettlementResult{Record: *record}
			return nil
		})
	})
	if err != nil {
		c.opts.metrics.Settlement(string(outcome.Outcome), resultLabel(err))
		return nil, err
	}

	switch {
	case result.Replayed:
		c.opts.metrics.Settlement(string(outcome.Outcome), "replayed")
	case result.Record.Applied:
		c.opts.metrics.Settlement(string(outcome.Outcome), "applied")
		c.service.ledger.InvalidateEvent(ctx, eventID)
	default:
		c.opts.metrics.Settlement(string(outcome.Outcome), "ignored")
	}

	c.opts.log.Info().
		Str("reservation_id", outcome.ReservationID.String()).
		Str("idempotency_key", outcome.IdempotencyKey).
		Str("outcome", string(outcome.Outcome)).
		Bool("applied", result.Record.Applied).
		Bool("replayed", result.Replayed).
		Str("note", result.Record.Note).
		Msg("settlement processed")

	return result, nil
}

func (c *SettlementCoordinator) applySuccess(ctx context.Context, res *domain.Reservation, record *domain.SettlementRecord) error {
	now := c.opts.clock.Now()

	if record.Amount != res.TotalAmount {
		record.Note = fmt.Sprintf("amount mismatch: expected %d, got %d", res.TotalAmount, record.Amount)
		return c.reject(ctx, res, record.Note, now)
	}

	switch res.Status {
	case domain.ReservationConfirmed:
		record.Note = "already confirmed"
		return nil
	case domain.ReservationCancelled, domain.ReservationExpired:
		record.Note = fmt.Sprintf("reservation is %s", res.Status)
		return c.reject(ctx, res, record.Note, now)
	}

	err := c.service.confirmLocked(ctx, res, now)
	if errors.Is(err, domain.ErrAlreadyExpired) {
		record.Note = "hold expired before payment settled"
		return c.reject(ctx, res, record.Note, now)
	}
	if err != nil {
		return err
	}

	record.Applied = true
	return nil
}

func (c *SettlementCoordinator) applyFailure(ctx context.Context, res *domain.Reservation, record *domain.SettlementRecord) error {
	if res.Status != domain.ReservationPending {
		record.Note = fmt.Sprintf("ignored: reservation is %s", res.Status)
		return nil
	}

	if err := c.service.releaseLocked(ctx, res, domain.ReservationCancelled, failedPaymentReason, c.opts.clock.Now()); err != nil {
		return err
	}

	record.Applied = true
	return nil
}

// reject tells the payment side that money was taken for a reservation that
// will not be fulfilled.
func (c *SettlementCoordinator) reject(ctx context.Context, res *domain.Reservation, reason string, now time.Time) error {
	return c.service.enqueue(ctx, domain.EventSettlementRejected, res, reason, now)
}
