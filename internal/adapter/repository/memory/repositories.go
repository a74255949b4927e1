package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
)

var errSettlementNotFound = errors.New("settlement record not found")

type InventoryRepository struct {
	s *Store
}

func (r *InventoryRepository) CreateUnit(ctx context.Context, unit *domain.InventoryUnit) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.units[unit.ID]; ok {
		return domain.InvalidRequest("inventory unit %s already exists", unit.ID)
	}
	r.s.units[unit.ID] = *unit
	return nil
}

func (r *InventoryRepository) GetUnit(ctx context.Context, unitID uuid.UUID) (*domain.InventoryUnit, error) {
	defer r.s.lock(ctx)()

	u, ok := r.s.units[unitID]
	if !ok {
		return nil, domain.ErrUnitNotFound
	}
	return &u, nil
}

func (r *InventoryRepository) GetUnits(ctx context.Context, unitIDs []uuid.UUID) ([]domain.InventoryUnit, error) {
	defer r.s.lock(ctx)()

	var units []domain.InventoryUnit
	for _, id := range unitIDs {
		if u, ok := r.s.units[id]; ok {
			units = append(units, u)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID.String() < units[j].ID.String() })
	return units, nil
}

func (r *InventoryRepository) ListUnitsByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.InventoryUnit, error) {
	defer r.s.lock(ctx)()

	var units []domain.InventoryUnit
	for _, u := range r.s.units {
		if u.EventID == eventID {
			units = append(units, u)
		}
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].Name != units[j].Name {
			return units[i].Name < units[j].Name
		}
		return units[i].ID.String() < units[j].ID.String()
	})
	return units, nil
}

func (r *InventoryRepository) RecordOperation(ctx context.Context, op domain.LedgerOperation) (bool, error) {
	defer r.s.lock(ctx)()

	if _, ok := r.s.operations[op.OperationID]; ok {
		return false, nil
	}
	r.s.operations[op.OperationID] = op
	r.s.opOrder = append(r.s.opOrder, op.OperationID)
	return true, nil
}

func (r *InventoryRepository) ListOperations(ctx context.Context, reservationID uuid.UUID) ([]domain.LedgerOperation, error) {
	defer r.s.lock(ctx)()

	var ops []domain.LedgerOperation
	for _, id := range r.s.opOrder {
		if op := r.s.operations[id]; op.ReservationID == reservationID {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

func (r *InventoryRepository) FindOrphanHolds(ctx context.Context, olderThan time.Time, limit int) ([]domain.LedgerOperation, error) {
	defer r.s.lock(ctx)()

	var ops []domain.LedgerOperation
	for _, id := range r.s.opOrder {
		op := r.s.operations[id]
		if op.Kind != domain.LedgerHold || !op.CreatedAt.Before(olderThan) {
			continue
		}
		if _, ok := r.s.reservations[op.ReservationID]; ok {
			continue
		}
		if _, ok := r.s.operations[domain.OperationID(op.ReservationID, op.UnitID, domain.LedgerRelease)]; ok {
			continue
		}
		ops = append(ops, op)
		if limit > 0 && len(ops) == limit {
			break
		}
	}
	return ops, nil
}

func (r *InventoryRepository) ApplyHold(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error) {
	return r.apply(ctx, unitID, func(u *domain.InventoryUnit) error {
		if !u.CanHold(quantity) {
			return &domain.CapacityError{UnitID: unitID, Requested: quantity, Available: u.Available()}
		}
		u.Held += quantity
		return nil
	})
}

func (r *InventoryRepository) ApplyRelease(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error) {
	return r.apply(ctx, unitID, func(u *domain.InventoryUnit) error {
		if u.Held < quantity {
			return errors.Wrapf(domain.ErrLedgerUnderflow, "release inventory: unit %s quantity %d", unitID, quantity)
		}
		u.Held -= quantity
		return nil
	})
}

func (r *InventoryRepository) ApplyCommit(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error) {
	return r.apply(ctx, unitID, func(u *domain.InventoryUnit) error {
		if u.Held < quantity {
			return errors.Wrapf(domain.ErrLedgerUnderflow, "commit inventory: unit %s quantity %d", unitID, quantity)
		}
		u.Held -= quantity
		u.Sold += quantity
		return nil
	})
}

func (r *InventoryRepository) ApplyUncommit(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error) {
	return r.apply(ctx, unitID, func(u *domain.InventoryUnit) error {
		if u.Sold < quantity {
			return errors.Wrapf(domain.ErrLedgerUnderflow, "uncommit inventory: unit %s quantity %d", unitID, quantity)
		}
		u.Sold -= quantity
		return nil
	})
}

func (r *InventoryRepository) apply(ctx context.Context, unitID uuid.UUID, mutate func(u *domain.InventoryUnit) error) (*domain.InventoryUnit, error) {
	defer r.s.lock(ctx)()

	u, ok := r.s.units[unitID]
	if !ok {
		return nil, domain.ErrUnitNotFound
	}
	if err := mutate(&u); err != nil {
		return nil, err
	}
	u.Version++
	u.UpdatedAt = r.s.clock.Now()
	r.s.units[unitID] = u
	return &u, nil
}

type ReservationRepository struct {
	s *Store
}

func (r *ReservationRepository) Create(ctx context.Context, reservation *domain.Reservation) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.reservations[reservation.ID]; ok {
		return domain.InvalidRequest("reservation %s already exists", reservation.ID)
	}
	r.s.reservations[reservation.ID] = cloneReservation(*reservation)
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error) {
	defer r.s.lock(ctx)()

	res, ok := r.s.reservations[reservationID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	res = cloneReservation(res)
	return &res, nil
}

// GetForUpdate is GetByID: a transaction already owns the whole store.
func (r *ReservationRepository) GetForUpdate(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error) {
	return r.GetByID(ctx, reservationID)
}

func (r *ReservationRepository) UpdateStatus(ctx context.Context, reservation *domain.Reservation) error {
	defer r.s.lock(ctx)()

	stored, ok := r.s.reservations[reservation.ID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if stored.Version != reservation.Version {
		return domain.Transient(errors.Wrapf(domain.ErrVersionConflict, "reservation %s version %d", reservation.ID, reservation.Version))
	}

	stored.Status = reservation.Status
	stored.CancelReason = reservation.CancelReason
	stored.ConfirmedAt = reservation.ConfirmedAt
	stored.CancelledAt = reservation.CancelledAt
	stored.UpdatedAt = reservation.UpdatedAt
	stored.Version++
	r.s.reservations[reservation.ID] = cloneReservation(stored)

	reservation.Version = stored.Version
	return nil
}

func (r *ReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	defer r.s.lock(ctx)()

	var due []domain.Reservation
	for _, res := range r.s.reservations {
		if res.Status == domain.ReservationPending && !res.ExpiresAt.After(now) {
			due = append(due, res)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })

	var ids []uuid.UUID
	for _, res := range due {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, res.ID)
	}
	return ids, nil
}

func (r *ReservationRepository) ListReconcileCandidates(ctx context.Context, limit int) ([]uuid.UUID, error) {
	defer r.s.lock(ctx)()

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, opID := range r.s.opOrder {
		op := r.s.operations[opID]
		res, ok := r.s.reservations[op.ReservationID]
		if !ok || seen[res.ID] {
			continue
		}

		drift := false
		switch res.Status {
		case domain.ReservationPending:
			drift = op.Kind == domain.LedgerCommit || op.Kind == domain.LedgerRelease
		case domain.ReservationConfirmed:
			drift = op.Kind == domain.LedgerUncommit
		}
		if !drift {
			continue
		}

		seen[res.ID] = true
		ids = append(ids, res.ID)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids, nil
}

type SettlementRepository struct {
	s *Store
}

func (r *SettlementRepository) Claim(ctx context.Context, record *domain.SettlementRecord) (bool, error) {
	defer r.s.lock(ctx)()

	if _, ok := r.s.settlements[record.IdempotencyKey]; ok {
		return false, nil
	}
	r.s.settlements[record.IdempotencyKey] = *record
	return true, nil
}

func (r *SettlementRepository) GetByKey(ctx context.Context, idempotencyKey string) (*domain.SettlementRecord, error) {
	defer r.s.lock(ctx)()

	rec, ok := r.s.settlements[idempotencyKey]
	if !ok {
		return nil, errors.Wrap(errSettlementNotFound, idempotencyKey)
	}
	return &rec, nil
}

func (r *SettlementRepository) Complete(ctx context.Context, record *domain.SettlementRecord) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.settlements[record.IdempotencyKey]; !ok {
		return errors.Wrap(errSettlementNotFound, record.IdempotencyKey)
	}
	r.s.settlements[record.IdempotencyKey] = *record
	return nil
}

type OutboxRepository struct {
	s *Store
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) error {
	defer r.s.lock(ctx)()

	msg.Payload = append([]byte(nil), msg.Payload...)
	r.s.outbox = append(r.s.outbox, msg)
	return nil
}

func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int, now, until time.Time) ([]domain.OutboxMessage, error) {
	defer r.s.lock(ctx)()

	var msgs []domain.OutboxMessage
	for i := range r.s.outbox {
		m := &r.s.outbox[i]
		if m.PublishedAt != nil || (m.ClaimedUntil != nil && m.ClaimedUntil.After(now)) {
			continue
		}
		claimed := until
		m.ClaimedUntil = &claimed
		msgs = append(msgs, *m)
		if limit > 0 && len(msgs) == limit {
			break
		}
	}
	return msgs, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	defer r.s.lock(ctx)()

	r.s.updateOutbox(ids, func(m *domain.OutboxMessage) {
		published := at
		m.PublishedAt = &published
		m.ClaimedUntil = nil
		m.Attempts++
		m.LastError = ""
	})
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, ids []uuid.UUID, reason string) error {
	defer r.s.lock(ctx)()

	r.s.updateOutbox(ids, func(m *domain.OutboxMessage) {
		m.ClaimedUntil = nil
		m.Attempts++
		m.LastError = reason
	})
	return nil
}

// All returns every outbox message in insertion order.
func (r *OutboxRepository) All(ctx context.Context) []domain.OutboxMessage {
	defer r.s.lock(ctx)()

	return append([]domain.OutboxMessage(nil), r.s.outbox...)
}

func (s *Store) updateOutbox(ids []uuid.UUID, fn func(m *domain.OutboxMessage)) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range s.outbox {
		if want[s.outbox[i].ID] {
			fn(&s.outbox[i])
		}
	}
}
