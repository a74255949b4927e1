package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type LedgerOpKind string

const (
	LedgerHold     LedgerOpKind = "HOLD"
	LedgerRelease  LedgerOpKind = "RELEASE"
	LedgerCommit   LedgerOpKind = "COMMIT"
	LedgerUncommit LedgerOpKind = "UNCOMMIT"
)

// LedgerOperation is the journal row written alongside every counter change.
// OperationID is unique, so replaying an operation is a no-op.
type LedgerOperation struct {
	OperationID   string
	ReservationID uuid.UUID
	UnitID        uuid.UUID
	Kind          LedgerOpKind
	Quantity      int
	CreatedAt     time.Time
}

func OperationID(reservationID, unitID uuid.UUID, kind LedgerOpKind) string {
	return fmt.Sprintf("%s:%s:%s", reservationID, unitID, kind)
}

// HoldToken records the exact quantity granted by a successful hold.
type HoldToken struct {
	OperationID   string
	ReservationID uuid.UUID
	UnitID        uuid.UUID
	Quantity      int
}

// LedgerState summarises the journal for one reservation, per unit.
type LedgerState struct {
	ops map[uuid.UUID]map[LedgerOpKind]bool
}

func NewLedgerState(ops []LedgerOperation) LedgerState {
	s := LedgerState{ops: make(map[uuid.UUID]map[LedgerOpKind]bool)}
	for _, op := range ops {
		kinds, ok := s.ops[op.UnitID]
		if !ok {
			kinds = make(map[LedgerOpKind]bool)
			s.ops[op.UnitID] = kinds
		}
		kinds[op.Kind] = true
	}
	return s
}

func (s LedgerState) Has(unitID uuid.UUID, kind LedgerOpKind) bool {
	return s.ops[unitID][kind]
}

func (s LedgerState) countItems(items []ReservationItem, kind LedgerOpKind) int {
	n := 0
	for _, item := range items {
		if s.Has(item.UnitID, kind) {
			n++
		}
	}
	return n
}

// Derive returns the status the ledger implies for a reservation with the given
// items, and whether every item already carries the implied operation.
// The second value is false when a confirm or release was interrupted part way.
func (s LedgerState) Derive(items []ReservationItem) (ReservationStatus, bool) {
	total := len(items)
	if total == 0 {
		return ReservationPending, true
	}

	uncommitted := s.countItems(items, LedgerUncommit)
	if uncommitted > 0 {
		return ReservationCancelled, uncommitted == total
	}

	committed := s.countItems(items, LedgerCommit)
	released := s.countItems(items, LedgerRelease)

	switch {
	case committed > 0:
		return ReservationConfirmed, committed == total
	case released > 0:
		return ReservationCancelled, released == total
	default:
		return ReservationPending, true
	}
}
