package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/ports"
)

const (
	reconcilerLeaseKey = "lease:reconciler"
	reconcileReason    = "reconciled from ledger"
)

type ReconcilerConfig struct {
	Interval time.Duration
	// OrphanGrace must comfortably exceed the time a create takes between
	// its first hold and the reservation write.
	OrphanGrace time.Duration
	BatchSize   int
	Lease       time.Duration
}

type ReconcileStats struct {
	OrphansReleased int
	Resynced        int
	Failed          int
}

// Reconciler repairs the two ways ledger and reservations can disagree:
// holds whose reservation was never written, and reservations whose status
// lags behind the ledger journal.
type Reconciler struct {
	tx           ports.Transactor
	ledger       *InventoryLedger
	inventory    ports.InventoryRepository
	reservations ports.ReservationRepository
	service      *ReservationService
	locker       ports.Locker
	cfg          ReconcilerConfig
	opts         options
}

func NewReconciler(
	tx ports.Transactor,
	inventory ports.InventoryRepository,
	reservations ports.ReservationRepository,
	service *ReservationService,
	locker ports.Locker,
	cfg ReconcilerConfig,
	opts ...Option,
) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.OrphanGrace <= 0 {
		cfg.OrphanGrace = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{
		tx:           tx,
		ledger:       service.ledger,
		inventory:    inventory,
		reservations: reservations,
		service:      service,
		locker:       locker,
		cfg:          cfg,
		opts:         buildOptions(opts),
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.opts.log.Info().Dur("interval", r.cfg.Interval).Msg("reconciler started")

	for {
		select {
		case <-ctx.Done():
			r.opts.log.Info().Msg("reconciler stopped")
			return nil
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				r.opts.log.Error().Err(err).Msg("reconcile pass failed")
			}
		}
	}
}

func (r *Reconciler) ReconcileOnce(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats

	if r.locker != nil && r.cfg.Lease > 0 {
		acquired, err := r.locker.Acquire(ctx, reconcilerLeaseKey, r.cfg.Lease)
		switch {
		case err != nil:
			r.opts.log.Warn().Err(err).Msg("reconciler lease unavailable, running anyway")
		case !acquired:
			return stats, nil
		default:
			defer func() {
				if err := r.locker.Release(context.WithoutCancel(ctx), reconcilerLeaseKey); err != nil {
					r.opts.log.Warn().Err(err).Msg("failed to release reconciler lease")
				}
			}()
		}
	}

	if err := r.releaseOrphans(ctx, &stats); err != nil {
		return stats, err
	}
	if err := r.resyncDrift(ctx, &stats); err != nil {
		return stats, err
	}

	if stats.OrphansReleased+stats.Resynced+stats.Failed > 0 {
		r.opts.log.Info().
			Int("orphans_released", stats.OrphansReleased).
			Int("resynced", stats.Resynced).
			Int("failed", stats.Failed).
			Msg("reconcile pass finished")
	}

	return stats, nil
}

func (r *Reconciler) releaseOrphans(ctx context.Context, stats *ReconcileStats) error {
	cutoff := r.opts.clock.Now().Add(-r.cfg.OrphanGrace)

	var orphans []domain.LedgerOperation
	err := r.opts.withRetry(ctx, func(ctx context.Context) error {
		var err error
		orphans, err = r.inventory.FindOrphanHolds(ctx, cutoff, r.cfg.BatchSize)
		return err
	})
	if err != nil {
		return err
	}

	touched := make(map[uuid.UUID]bool)
	for _, hold := range orphans {
		req := LedgerRequest{ReservationID: hold.ReservationID, UnitID: hold.UnitID, Quantity: hold.Quantity}
		err := r.opts.withRetry(ctx, func(ctx context.Context) error {
			_, err := r.ledger.Release(ctx, req)
			return err
		})
		if err != nil {
			stats.Failed++
			r.opts.log.Error().Err(err).Str("operation_id", hold.OperationID).Msg("failed to release orphan hold")
			continue
		}

		stats.OrphansReleased++
		touched[hold.UnitID] = true
		r.opts.metrics.Repair("orphan_hold")
		r.opts.log.Warn().
			Str("reservation_id", hold.ReservationID.String()).
			Str("unit_id", hold.UnitID.String()).
			Int("quantity", hold.Quantity).
			Msg("released orphan hold")
	}

	r.invalidateUnits(ctx, touched)
	return nil
}

func (r *Reconciler) invalidateUnits(ctx context.Context, unitIDs map[uuid.UUID]bool) {
	events := make(map[uuid.UUID]bool)
	for id := range unitIDs {
		unit, err := r.ledger.GetUnit(ctx, id)
		if err != nil {
			continue
		}
		events[unit.EventID] = true
	}
	for id := range events {
		r.ledger.InvalidateEvent(ctx, id)
	}
}

func (r *Reconciler) resyncDrift(ctx context.Context, stats *ReconcileStats) error {
	var ids []uuid.UUID
	err := r.opts.withRetry(ctx, func(ctx context.Context) error {
		var err error
		ids, err = r.reservations.ListReconcileCandidates(ctx, r.cfg.BatchSize)
		return err
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		changed, err := r.ResyncReservation(ctx, id)
		if err != nil {
			stats.Failed++
			r.opts.log.Error().Err(err).Str("reservation_id", id.String()).Msg("failed to reconcile reservation")
			continue
		}
		if changed {
			stats.Resynced++
		}
	}

	return nil
}

// ResyncReservation derives the status from the ledger journal, completes operations a
// crash left half done, and rewrites the reservation to match.
func (r *Reconciler) ResyncReservation(ctx context.Context, reservationID uuid.UUID) (bool, error) {
	var (
		eventID uuid.UUID
		changed bool
	)
	err := r.opts.withRetry(ctx, func(ctx context.Context) error {
		return r.tx.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			eventID, changed, err = r.resyncOne(ctx, reservationID)
			return err
		})
	})
	if err != nil {
		return false, err
	}
	if changed {
		r.opts.metrics.Repair("status_drift")
		r.ledger.InvalidateEvent(ctx, eventID)
	}
	return changed, nil
}

func (r *Reconciler) resyncOne(ctx context.Context, reservationID uuid.UUID) (uuid.UUID, bool, error) {
	res, err := r.reservations.GetForUpdate(ctx, reservationID)
	if err != nil {
		return uuid.Nil, false, err
	}

	ops, err := r.inventory.ListOperations(ctx, reservationID)
	if err != nil {
		return uuid.Nil, false, err
	}

	state := domain.NewLedgerState(ops)
	target, complete := state.Derive(res.Items)

	if !complete {
		if err := r.completeOperations(ctx, res, state, target); err != nil {
			return uuid.Nil, false, err
		}
	}

	now := r.opts.clock.Now()
	if target == domain.ReservationCancelled && res.Status == domain.ReservationPending &&
		res.IsExpiredAt(now) && !r.anyItemHas(res, state, domain.LedgerUncommit) {
		target = domain.ReservationExpired
	}

	if res.Status == target {
		return res.EventID, !complete, nil
	}

	r.opts.log.Warn().
		Str("reservation_id", res.ID.String()).
		Str("stored_status", string(res.Status)).
		Str("ledger_status", string(target)).
		Msg("reservation status disagrees with ledger, resyncing")

	res.Resync(target, now, reconcileReason)
	if err := r.reservations.UpdateStatus(ctx, res); err != nil {
		return uuid.Nil, false, err
	}

	eventType := domain.EventReservationCancelled
	switch target {
	case domain.ReservationConfirmed:
		eventType = domain.EventReservationConfirmed
	case domain.ReservationExpired:
		eventType = domain.EventReservationExpired
	}
	if err := r.service.enqueue(ctx, eventType, res, reconcileReason, now); err != nil {
		return uuid.Nil, false, err
	}

	return res.EventID, true, nil
}

func (r *Reconciler) completeOperations(ctx context.Context, res *domain.Reservation, state domain.LedgerState, target domain.ReservationStatus) error {
	var (
		kind  domain.LedgerOpKind
		apply func(ctx context.Context, req LedgerRequest) (bool, error)
	)

	switch {
	case target == domain.ReservationConfirmed:
		kind, apply = domain.LedgerCommit, r.ledger.Commit
	case r.anyItemHas(res, state, domain.LedgerUncommit):
		kind, apply = domain.LedgerUncommit, r.ledger.Uncommit
	default:
		kind, apply = domain.LedgerRelease, r.ledger.Release
	}

	for _, item := range res.Items {
		if state.Has(item.UnitID, kind) {
			continue
		}
		if _, err := apply(ctx, itemRequest(res, item)); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reconciler) anyItemHas(res *domain.Reservation, state domain.LedgerState, kind domain.LedgerOpKind) bool {
	for _, item := range res.Items {
		if state.Has(item.UnitID, kind) {
			return true
		}
	}
	return false
}
