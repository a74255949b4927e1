package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/ports"
)

// LedgerRequest identifies one counter change. OperationID defaults to
// <reservation>:<unit>:<kind>; calls repeating an operation id are no-ops.
type LedgerRequest struct {
	OperationID   string
	ReservationID uuid.UUID
	UnitID        uuid.UUID
	Quantity      int
}

type CreateUnitRequest struct {
	EventID       string `json:"event_id"`
	Name          string `json:"name"`
	UnitPrice     int64  `json:"unit_price"`
	TotalCapacity int    `json:"total_capacity"`
}

// InventoryLedger owns the held/sold counters of every inventory unit.
type InventoryLedger struct {
	tx    ports.Transactor
	repo  ports.InventoryRepository
	cache ports.AvailabilityCache
	opts  options
}

func NewInventoryLedger(tx ports.Transactor, repo ports.InventoryRepository, cache ports.AvailabilityCache, opts ...Option) *InventoryLedger {
	return &InventoryLedger{
		tx:    tx,
		repo:  repo,
		cache: cache,
		opts:  buildOptions(opts),
	}
}

// TryHold moves quantity from free to held or fails with a *domain.CapacityError.
func (l *InventoryLedger) TryHold(ctx context.Context, req LedgerRequest) (*domain.HoldToken, error) {
	opID, _, err := l.apply(ctx, domain.LedgerHold, req, l.repo.ApplyHold)
	if err != nil {
		return nil, err
	}

	return &domain.HoldToken{
		OperationID:   opID,
		ReservationID: req.ReservationID,
		UnitID:        req.UnitID,
		Quantity:      req.Quantity,
	}, nil
}

// Release returns held capacity. It reports false when the operation was already applied.
func (l *InventoryLedger) Release(ctx context.Context, req LedgerRequest) (bool, error) {
	_, applied, err := l.apply(ctx, domain.LedgerRelease, req, l.repo.ApplyRelease)
	return applied, err
}

func (l *InventoryLedger) Commit(ctx context.Context, req LedgerRequest) (bool, error) {
	_, applied, err := l.apply(ctx, domain.LedgerCommit, req, l.repo.ApplyCommit)
	return applied, err
}

// Uncommit returns sold capacity after a refund.
func (l *InventoryLedger) Uncommit(ctx context.Context, req LedgerRequest) (bool, error) {
	_, applied, err := l.apply(ctx, domain.LedgerUncommit, req, l.repo.ApplyUncommit)
	return applied, err
}

type applyFunc func(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error)

func (l *InventoryLedger) apply(ctx context.Context, kind domain.LedgerOpKind, req LedgerRequest, fn applyFunc) (string, bool, error) {
	if req.Quantity <= 0 {
		return "", false, domain.InvalidRequest("quantity must be positive, got %d", req.Quantity)
	}

	opID := req.OperationID
	if opID == "" {
		opID = domain.OperationID(req.ReservationID, req.UnitID, kind)
	}

	applied := false
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		recorded, err := l.repo.RecordOperation(ctx, domain.LedgerOperation{
			OperationID:   opID,
			ReservationID: req.ReservationID,
			UnitID:        req.UnitID,
			Kind:          kind,
			Quantity:      req.Quantity,
			CreatedAt:     l.opts.clock.Now(),
		})
		if err != nil {
			return err
		}
		if !recorded {
			return nil
		}

		if _, err := fn(ctx, req.UnitID, req.Quantity); err != nil {
			return err
		}
		applied = true
		return nil
	})

	l.opts.metrics.LedgerOp(string(kind), resultLabel(err))
	if err != nil {
		return "", false, err
	}

	if !applied {
		l.opts.log.Debug().Str("operation_id", opID).Msg("ledger operation already applied")
	}

	return opID, applied, nil
}

func (l *InventoryLedger) CreateUnit(ctx context.Context, req CreateUnitRequest) (*domain.InventoryUnit, error) {
	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		return nil, domain.InvalidRequest("invalid event id")
	}

	unit, err := domain.NewInventoryUnit(eventID, req.Name, req.UnitPrice, req.TotalCapacity, l.opts.clock.Now())
	if err != nil {
		return nil, err
	}

	err = l.opts.withRetry(ctx, func(ctx context.Context) error {
		return l.repo.CreateUnit(ctx, unit)
	})
	if err != nil {
		return nil, err
	}

	l.InvalidateEvent(ctx, eventID)
	return unit, nil
}

func (l *InventoryLedger) GetUnit(ctx context.Context, unitID uuid.UUID) (*domain.InventoryUnit, error) {
	var unit *domain.InventoryUnit
	err := l.opts.withRetry(ctx, func(ctx context.Context) error {
		var err error
		unit, err = l.repo.GetUnit(ctx, unitID)
		return err
	})
	return unit, err
}

// GetUnits loads every unit in unitIDs and fails with ErrUnitNotFound if one is missing.
func (l *InventoryLedger) GetUnits(ctx context.Context, unitIDs []uuid.UUID) (map[uuid.UUID]domain.InventoryUnit, error) {
	var units []domain.InventoryUnit
	err := l.opts.withRetry(ctx, func(ctx context.Context) error {
		var err error
		units, err = l.repo.GetUnits(ctx, unitIDs)
		return err
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]domain.InventoryUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}
	for _, id := range unitIDs {
		if _, ok := byID[id]; !ok {
			return nil, errors.Wrapf(domain.ErrUnitNotFound, "unit %s", id)
		}
	}

	return byID, nil
}

// EventAvailability serves the per-event unit list from the cache when it can.
// Cache failures fall through to the store.
func (l *InventoryLedger) EventAvailability(ctx context.Context, eventID uuid.UUID) ([]domain.InventoryUnit, error) {
	if l.cache != nil {
		units, hit, err := l.cache.GetEventAvailability(ctx, eventID)
		if err != nil {
			l.opts.log.Warn().Err(err).Str("event_id", eventID.String()).Msg("availability cache read failed")
		} else if hit {
			return units, nil
		}
	}

	var units []domain.InventoryUnit
	err := l.opts.withRetry(ctx, func(ctx context.Context) error {
		var err error
		units, err = l.repo.ListUnitsByEvent(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		if err := l.cache.SetEventAvailability(ctx, eventID, units); err != nil {
			l.opts.log.Warn().Err(err).Str("event_id", eventID.String()).Msg("availability cache write failed")
		}
	}

	return units, nil
}

// InvalidateEvent drops the cached availability. Call it after the
// transaction that changed the counters has committed.
func (l *InventoryLedger) InvalidateEvent(ctx context.Context, eventID uuid.UUID) {
	if l.cache == nil {
		return
	}
	if err := l.cache.InvalidateEvent(ctx, eventID); err != nil {
		l.opts.log.Warn().Err(err).Str("event_id", eventID.String()).Msg("failed to invalidate availability cache")
	}
}
