// Package memory is an in-process store for local runs and tests. All
// repositories share one Store; a transaction holds the store lock until it
// ends and restores a snapshot when it fails.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/clock"
)

type txKey struct{}

type Store struct {
	mu    sync.Mutex
	clock clock.Clock

	units        map[uuid.UUID]domain.InventoryUnit
	operations   map[string]domain.LedgerOperation
	opOrder      []string
	reservations map[uuid.UUID]domain.Reservation
	settlements  map[string]domain.SettlementRecord
	outbox       []domain.OutboxMessage
}

func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Store{
		clock:        clk,
		units:        make(map[uuid.UUID]domain.InventoryUnit),
		operations:   make(map[string]domain.LedgerOperation),
		reservations: make(map[uuid.UUID]domain.Reservation),
		settlements:  make(map[string]domain.SettlementRecord),
	}
}

func (s *Store) Inventory() *InventoryRepository {
	return &InventoryRepository{s: s}
}

func (s *Store) Reservations() *ReservationRepository {
	return &ReservationRepository{s: s}
}

func (s *Store) Settlements() *SettlementRepository {
	return &SettlementRepository{s: s}
}

func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{s: s}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock takes the store lock unless ctx already runs inside one of its transactions.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx implements ports.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
	}
	return err
}

type snapshot struct {
	units        map[uuid.UUID]domain.InventoryUnit
	operations   map[string]domain.LedgerOperation
	opOrder      []string
	reservations map[uuid.UUID]domain.Reservation
	settlements  map[string]domain.SettlementRecord
	outbox       []domain.OutboxMessage
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		units:        make(map[uuid.UUID]domain.InventoryUnit, len(s.units)),
		operations:   make(map[string]domain.LedgerOperation, len(s.operations)),
		opOrder:      append([]string(nil), s.opOrder...),
		reservations: make(map[uuid.UUID]domain.Reservation, len(s.reservations)),
		settlements:  make(map[string]domain.SettlementRecord, len(s.settlements)),
		outbox:       append([]domain.OutboxMessage(nil), s.outbox...),
	}
	for k, v := range s.units {
		snap.units[k] = v
	}
	for k, v := range s.operations {
		snap.operations[k] = v
	}
	for k, v := range s.reservations {
		snap.reservations[k] = cloneReservation(v)
	}
	for k, v := range s.settlements {
		snap.settlements[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.units = snap.units
	s.operations = snap.operations
	s.opOrder = snap.opOrder
	s.reservations = snap.reservations
	s.settlements = snap.settlements
	s.outbox = snap.outbox
}

func cloneReservation(r domain.Reservation) domain.Reservation {
	r.Items = append([]domain.ReservationItem(nil), r.Items...)
	if r.ConfirmedAt != nil {
		t := *r.ConfirmedAt
		r.ConfirmedAt = &t
	}
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		r.CancelledAt = &t
	}
	return r
}
