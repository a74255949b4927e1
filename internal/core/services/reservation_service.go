package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/ports"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/tracing"
)

type ReservationItemRequest struct {
	UnitID   string `json:"unit_id"`
	Quantity int    `json:"quantity"`
}

type CreateReservationRequest struct {
	UserID  string                   `json:"user_id"`
	EventID string                   `json:"event_id"`
	Items   []ReservationItemRequest `json:"items"`
}

type ReservationService struct {
	tx           ports.Transactor
	ledger       *InventoryLedger
	reservations ports.ReservationRepository
	outbox       ports.OutboxRepository
	opts         options
}

func NewReservationService(
	tx ports.Transactor,
	ledger *InventoryLedger,
	reservations ports.ReservationRepository,
	outbox ports.OutboxRepository,
	opts ...Option,
) *ReservationService {
	return &ReservationService{
		tx:           tx,
		ledger:       ledger,
		reservations: reservations,
		outbox:       outbox,
		opts:         buildOptions(opts),
	}
}

// Create holds every requested unit and stores a PENDING reservation. Holds are
// taken in unit id order; if any hold or the final write fails, the holds
// already taken are released before the error is returned.
func (s *ReservationService) Create(ctx context.Context, req CreateReservationRequest) (_ *domain.Reservation, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "ReservationService.Create")
	defer func() {
		tracing.End(span, err)
		s.opts.metrics.ReservationOp("create", resultLabel(err))
	}()

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, domain.InvalidRequest("invalid user id")
	}

	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		return nil, domain.InvalidRequest("invalid event id")
	}

	quantities, err := mergeItems(req.Items)
	if err != nil {
		return nil, err
	}

	unitIDs := make([]uuid.UUID, 0, len(quantities))
	for id := range quantities {
		unitIDs = append(unitIDs, id)
	}

	units, err := s.ledger.GetUnits(ctx, unitIDs)
	if err != nil {
		return nil, err
	}

	items := make([]domain.ReservationItem, 0, len(quantities))
	for id, qty := range quantities {
		unit := units[id]
		if unit.EventID != eventID {
			return nil, domain.InvalidRequest("unit %s does not belong to event %s", id, eventID)
		}
		items = append(items, domain.ReservationItem{
			UnitID:    id,
			Quantity:  qty,
			UnitPrice: unit.UnitPrice,
		})
	}

	now := s.opts.clock.Now()
	reservation, err := domain.NewReservation(uuid.New(), userID, eventID, items, now, s.opts.holdDuration)
	if err != nil {
		return nil, err
	}

	var held []domain.HoldToken
	for _, item := range reservation.Items {
		req := LedgerRequest{ReservationID: reservation.ID, UnitID: item.UnitID, Quantity: item.Quantity}

		var token *domain.HoldToken
		err := s.opts.withRetry(ctx, func(ctx context.Context) error {
			var err error
			token, err = s.ledger.TryHold(ctx, req)
			return err
		})
		if err != nil {
			s.rollbackHolds(ctx, held)
			return nil, err
		}

		held = append(held, *token)
	}

	err = s.opts.withRetry(ctx, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.reservations.Create(ctx, reservation); err != nil {
				return err
			}
			return s.enqueue(ctx, domain.EventReservationCreated, reservation, "", now)
		})
	})
	if err != nil {
		// A commit that failed on the wire may still have landed. The lookup
		// must outlive a cancelled request or it would release holds that a
		// committed reservation owns.
		if stored, getErr := s.reservations.GetByID(context.WithoutCancel(ctx), reservation.ID); getErr == nil {
			return stored, nil
		}
		s.rollbackHolds(ctx, held)
		return nil, err
	}

	s.ledger.InvalidateEvent(ctx, eventID)

	s.opts.log.Info().
		Str("reservation_id", reservation.ID.String()).
		Str("event_id", eventID.String()).
		Int("items", len(reservation.Items)).
		Int64("total_amount", reservation.TotalAmount).
		Time("expires_at", reservation.ExpiresAt).
		Msg("reservation created")

	return reservation, nil
}

func mergeItems(items []ReservationItemRequest) (map[uuid.UUID]int, error) {
	if len(items) == 0 {
		return nil, domain.InvalidRequest("no items selected")
	}

	quantities := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		unitID, err := uuid.Parse(item.UnitID)
		if err != nil {
			return nil, domain.InvalidRequest("invalid unit id %q", item.UnitID)
		}
		if item.Quantity <= 0 {
			return nil, domain.InvalidRequest("quantity for unit %s must be positive", unitID)
		}
		if item.Quantity > domain.MaxQuantity-quantities[unitID] {
			return nil, domain.InvalidRequest("quantity for unit %s exceeds %d", unitID, domain.MaxQuantity)
		}
		quantities[unitID] += item.Quantity
	}

	return quantities, nil
}

// rollbackHolds runs detached from the request context so a disconnecting
// client cannot leave capacity held.
func (s *ReservationService) rollbackHolds(ctx context.Context, tokens []domain.HoldToken) {
	ctx = context.WithoutCancel(ctx)

	for _, token := range tokens {
		req := LedgerRequest{ReservationID: token.ReservationID, UnitID: token.UnitID, Quantity: token.Quantity}
		err := s.opts.withRetry(ctx, func(ctx context.Context) error {
			_, err := s.ledger.Release(ctx, req)
			return err
		})
		if err != nil {
			s.opts.log.Error().Err(err).
				Str("operation_id", token.OperationID).
				Msg("failed to release hold, leaving it to the reconciler")
		}
	}
}

func (s *ReservationService) Get(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error) {
	var reservation *domain.Reservation
	err := s.opts.withRetry(ctx, func(ctx context.Context) error {
		var err error
		reservation, err = s.reservations.GetByID(ctx, reservationID)
		return err
	})
	return reservation, err
}

// Confirm converts the holds into sales. Only a PENDING reservation that has
// not reached its expiry can be confirmed.
func (s *ReservationService) Confirm(ctx context.Context, reservationID uuid.UUID) (_ *domain.Reservation, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "ReservationService.Confirm")
	defer func() {
		tracing.End(span, err)
		s.opts.metrics.ReservationOp("confirm", resultLabel(err))
	}()

	var reservation *domain.Reservation
	err = s.inTx(ctx, func(ctx context.Context) error {
		res, err := s.reservations.GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := s.confirmLocked(ctx, res, s.opts.clock.Now()); err != nil {
			return err
		}
		reservation = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.InvalidateEvent(ctx, reservation.EventID)
	s.opts.log.Info().Str("reservation_id", reservationID.String()).Msg("reservation confirmed")
	return reservation, nil
}

// Cancel releases a PENDING reservation or refunds a CONFIRMED one. Cancelling
// a reservation that is already CANCELLED or EXPIRED returns it unchanged.
func (s *ReservationService) Cancel(ctx context.Context, reservationID uuid.UUID, reason string) (_ *domain.Reservation, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "ReservationService.Cancel")
	defer func() {
		tracing.End(span, err)
		s.opts.metrics.ReservationOp("cancel", resultLabel(err))
	}()

	if reason == "" {
		reason = "cancelled by user"
	}

	var (
		reservation *domain.Reservation
		changed     bool
	)
	err = s.inTx(ctx, func(ctx context.Context) error {
		res, err := s.reservations.GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		reservation = res

		switch res.Status {
		case domain.ReservationCancelled, domain.ReservationExpired:
			changed = false
			return nil
		case domain.ReservationPending:
			changed = true
			return s.releaseLocked(ctx, res, domain.ReservationCancelled, reason, s.opts.clock.Now())
		case domain.ReservationConfirmed:
			changed = true
			return s.refundLocked(ctx, res, reason, s.opts.clock.Now())
		default:
			return domain.ErrInvalidState
		}
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.ledger.InvalidateEvent(ctx, reservation.EventID)
		s.opts.log.Info().Str("reservation_id", reservationID.String()).Str("reason", reason).Msg("reservation cancelled")
	}
	return reservation, nil
}

// CancelPending is the system cancel used after a failed payment. It never
// touches a reservation that has left PENDING and reports whether it changed anything.
func (s *ReservationService) CancelPending(ctx context.Context, reservationID uuid.UUID, reason string) (*domain.Reservation, bool, error) {
	var (
		reservation *domain.Reservation
		changed     bool
	)
	err := s.inTx(ctx, func(ctx context.Context) error {
		res, err := s.reservations.GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		reservation = res

		changed = res.Status == domain.ReservationPending
		if !changed {
			return nil
		}
		return s.releaseLocked(ctx, res, domain.ReservationCancelled, reason, s.opts.clock.Now())
	})
	s.opts.metrics.ReservationOp("cancel_pending", resultLabel(err))
	if err != nil {
		return nil, false, err
	}

	if changed {
		s.ledger.InvalidateEvent(ctx, reservation.EventID)
	}
	return reservation, changed, nil
}

// Expire releases the holds of a PENDING reservation whose hold window has
// passed. Anything else fails with domain.ErrInvalidState.
func (s *ReservationService) Expire(ctx context.Context, reservationID uuid.UUID) (_ *domain.Reservation, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "ReservationService.Expire")
	defer func() {
		tracing.End(span, err)
		s.opts.metrics.ReservationOp("expire", resultLabel(err))
	}()

	var reservation *domain.Reservation
	err = s.inTx(ctx, func(ctx context.Context) error {
		res, err := s.reservations.GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}

		now := s.opts.clock.Now()
		if res.Status != domain.ReservationPending || !res.IsExpiredAt(now) {
			return domain.ErrInvalidState
		}

		reservation = res
		return s.releaseLocked(ctx, res, domain.ReservationExpired, "hold expired", now)
	})
	if err != nil {
		return nil, err
	}

	s.ledger.InvalidateEvent(ctx, reservation.EventID)
	s.opts.log.Info().Str("reservation_id", reservationID.String()).Msg("reservation expired and capacity released")
	return reservation, nil
}

func (s *ReservationService) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.opts.withRetry(ctx, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, fn)
	})
}

// The *Locked helpers expect the reservation row to be locked by the
// surrounding transaction.

func (s *ReservationService) confirmLocked(ctx context.Context, res *domain.Reservation, now time.Time) error {
	if err := res.Confirm(now); err != nil {
		return err
	}

	for _, item := range res.Items {
		if _, err := s.ledger.Commit(ctx, itemRequest(res, item)); err != nil {
			return err
		}
	}

	if err := s.reservations.UpdateStatus(ctx, res); err != nil {
		return err
	}
	return s.enqueue(ctx, domain.EventReservationConfirmed, res, "", now)
}

func (s *ReservationService) releaseLocked(ctx context.Context, res *domain.Reservation, target domain.ReservationStatus, reason string, now time.Time) error {
	var err error
	if target == domain.ReservationExpired {
		err = res.Expire(now)
	} else {
		err = res.Cancel(now, reason)
	}
	if err != nil {
		return err
	}

	for _, item := range res.Items {
		if _, err := s.ledger.Release(ctx, itemRequest(res, item)); err != nil {
			return err
		}
	}

	if err := s.reservations.UpdateStatus(ctx, res); err != nil {
		return err
	}

	eventType := domain.EventReservationCancelled
	if target == domain.ReservationExpired {
		eventType = domain.EventReservationExpired
	}
	return s.enqueue(ctx, eventType, res, reason, now)
}

func (s *ReservationService) refundLocked(ctx context.Context, res *domain.Reservation, reason string, now time.Time) error {
	if err := res.Cancel(now, reason); err != nil {
		return err
	}

	for _, item := range res.Items {
		if _, err := s.ledger.Uncommit(ctx, itemRequest(res, item)); err != nil {
			return err
		}
	}

	if err := s.reservations.UpdateStatus(ctx, res); err != nil {
		return err
	}
	return s.enqueue(ctx, domain.EventReservationCancelled, res, reason, now)
}

func (s *ReservationService) enqueue(ctx context.Context, eventType domain.EventType, res *domain.Reservation, reason string, now time.Time) error {
	msg, err := domain.NewOutboxMessage(domain.NewReservationEvent(eventType, res, reason, now))
	if err != nil {
		return err
	}
	return s.outbox.Enqueue(ctx, msg)
}

func itemRequest(res *domain.Reservation, item domain.ReservationItem) LedgerRequest {
	return LedgerRequest{ReservationID: res.ID, UnitID: item.UnitID, Quantity: item.Quantity}
}

// IsBenign reports errors a background worker can skip without alerting:
// the reservation moved on before the worker got to it.
func IsBenign(err error) bool {
	return errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrReservationNotFound)
}
