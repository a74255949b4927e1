package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, msgs ...domain.OutboxMessage) error
}

type AvailabilityCache interface {
	GetEventAvailability(ctx context.Context, eventID uuid.UUID) ([]domain.InventoryUnit, bool, error)
	SetEventAvailability(ctx context.Context, eventID uuid.UUID, units []domain.InventoryUnit) error
	InvalidateEvent(ctx context.Context, eventID uuid.UUID) error
}

// Locker hands out short leases so replicas can skip duplicate background work.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
