package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
)

// Transactor runs fn inside a transaction carried by the context passed to fn.
// Nested calls join the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type InventoryRepository interface {
	CreateUnit(ctx context.Context, unit *domain.InventoryUnit) error
	GetUnit(ctx context.Context, unitID uuid.UUID) (*domain.InventoryUnit, error)
	GetUnits(ctx context.Context, unitIDs []uuid.UUID) ([]domain.InventoryUnit, error)
	ListUnitsByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.InventoryUnit, error)

	// RecordOperation inserts the journal row and reports false if the
	// operation id was already recorded.
	RecordOperation(ctx context.Context, op domain.LedgerOperation) (bool, error)
	ListOperations(ctx context.Context, reservationID uuid.UUID) ([]domain.LedgerOperation, error)
	FindOrphanHolds(ctx context.Context, olderThan time.Time, limit int) ([]domain.LedgerOperation, error)

	ApplyHold(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error)
	ApplyRelease(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error)
	ApplyCommit(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error)
	ApplyUncommit(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, reservation *domain.Reservation) error
	GetByID(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error)
	GetForUpdate(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error)
	// UpdateStatus writes the status fields when the stored version still equals
	// reservation.Version, then bumps reservation.Version.
	UpdateStatus(ctx context.Context, reservation *domain.Reservation) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListReconcileCandidates(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type SettlementRepository interface {
	// Claim inserts the record if its idempotency key is new.
	Claim(ctx context.Context, record *domain.SettlementRecord) (bool, error)
	GetByKey(ctx context.Context, idempotencyKey string) (*domain.SettlementRecord, error)
	Complete(ctx context.Context, record *domain.SettlementRecord) error
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, msg domain.OutboxMessage) error
	// ClaimPending leases up to limit unpublished messages until the given
	// time. Other relays skip them while the claim is live.
	ClaimPending(ctx context.Context, limit int, now, until time.Time) ([]domain.OutboxMessage, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
	// MarkFailed records the error and drops the claim.
	MarkFailed(ctx context.Context, ids []uuid.UUID, reason string) error
}
