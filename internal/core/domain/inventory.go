package domain

import (
	"time"

	"github.com/google/uuid"
)

// InventoryUnit is a sellable slice of capacity: a ticket type for an event,
// or a single seat when TotalCapacity is 1.
type InventoryUnit struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	Name          string
	UnitPrice     int64
	TotalCapacity int
	Held          int
	Sold          int
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewInventoryUnit(eventID uuid.UUID, name string, unitPrice int64, capacity int, now time.Time) (*InventoryUnit, error) {
	if eventID == uuid.Nil {
		return nil, InvalidRequest("event id is required")
	}
	if name == "" {
		return nil, InvalidRequest("unit name is required")
	}
	if unitPrice < 0 {
		return nil, InvalidRequest("unit price must not be negative")
	}
	if capacity < 0 {
		return nil, InvalidRequest("total capacity must not be negative")
	}
	if capacity > MaxQuantity {
		return nil, InvalidRequest("total capacity must not exceed %d", MaxQuantity)
	}

	return &InventoryUnit{
		ID:            uuid.New(),
		EventID:       eventID,
		Name:          name,
		UnitPrice:     unitPrice,
		TotalCapacity: capacity,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (u *InventoryUnit) Available() int {
	return u.TotalCapacity - u.Held - u.Sold
}

func (u *InventoryUnit) CanHold(quantity int) bool {
	return quantity > 0 && u.Held+u.Sold+quantity <= u.TotalCapacity
}

// Consistent reports whether the counters satisfy held + sold <= capacity.
func (u *InventoryUnit) Consistent() bool {
	return u.Held >= 0 && u.Sold >= 0 && u.Held+u.Sold <= u.TotalCapacity
}
