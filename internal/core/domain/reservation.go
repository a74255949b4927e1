package domain

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// MaxQuantity caps item quantities and unit capacities at the range of the
// INTEGER columns that store them.
const MaxQuantity = math.MaxInt32

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationExpired   ReservationStatus = "EXPIRED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationConfirmed || s == ReservationCancelled || s == ReservationExpired
}

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationExpired, ReservationCancelled:
		return true
	}
	return false
}

// CONFIRMED is terminal for the purchase flow; the only way out is the
// compensating cancel that returns sold capacity (a refund).
var transitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:   {ReservationConfirmed, ReservationCancelled, ReservationExpired},
	ReservationConfirmed: {ReservationCancelled},
	ReservationCancelled: {},
	ReservationExpired:   {},
}

type Reservation struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	EventID      uuid.UUID
	Items        []ReservationItem
	TotalAmount  int64
	Status       ReservationStatus
	CancelReason string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
	Version      int64
	UpdatedAt    time.Time
}

type ReservationItem struct {
	ID            uuid.UUID
	ReservationID uuid.UUID
	UnitID        uuid.UUID
	Quantity      int
	UnitPrice     int64
}

func (i ReservationItem) Amount() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

// NewReservation builds a PENDING reservation. Items are stored sorted by unit
// id, which is also the order ledger operations are applied in.
func NewReservation(id, userID, eventID uuid.UUID, items []ReservationItem, now time.Time, holdDuration time.Duration) (*Reservation, error) {
	if len(items) == 0 {
		return nil, InvalidRequest("reservation needs at least one item")
	}

	sorted := make([]ReservationItem, len(items))
	copy(sorted, items)
	SortItems(sorted)

	for i := range sorted {
		if sorted[i].Quantity <= 0 {
			return nil, InvalidRequest("quantity for unit %s must be positive", sorted[i].UnitID)
		}
		if sorted[i].Quantity > MaxQuantity {
			return nil, InvalidRequest("quantity for unit %s exceeds %d", sorted[i].UnitID, MaxQuantity)
		}
		if sorted[i].UnitPrice < 0 {
			return nil, InvalidRequest("price for unit %s must not be negative", sorted[i].UnitID)
		}
		if sorted[i].ID == uuid.Nil {
			sorted[i].ID = uuid.New()
		}
		sorted[i].ReservationID = id
	}

	r := &Reservation{
		ID:        id,
		UserID:    userID,
		EventID:   eventID,
		Items:     sorted,
		Status:    ReservationPending,
		CreatedAt: now,
		ExpiresAt: now.Add(holdDuration),
		Version:   1,
		UpdatedAt: now,
	}
	total, ok := checkedTotal(sorted)
	if !ok {
		return nil, InvalidRequest("reservation total exceeds the supported amount")
	}
	r.TotalAmount = total

	return r, nil
}

// checkedTotal sums item amounts, reporting false if any product or the sum
// overflows int64. Prices are assumed non-negative.
func checkedTotal(items []ReservationItem) (int64, bool) {
	var total int64
	for _, item := range items {
		if item.UnitPrice > 0 && int64(item.Quantity) > math.MaxInt64/item.UnitPrice {
			return 0, false
		}
		amount := item.Amount()
		if total > math.MaxInt64-amount {
			return 0, false
		}
		total += amount
	}
	return total, true
}

func SortItems(items []ReservationItem) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].UnitID.String() < items[j].UnitID.String()
	})
}

func (r *Reservation) ComputeTotal() int64 {
	var total int64
	for _, item := range r.Items {
		total += item.Amount()
	}
	return total
}

func (r *Reservation) IsExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *Reservation) CanTransitionTo(target ReservationStatus) bool {
	for _, allowed := range transitions[r.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (r *Reservation) Confirm(now time.Time) error {
	if r.Status == ReservationExpired {
		return ErrAlreadyExpired
	}
	if r.Status != ReservationPending {
		return ErrInvalidState
	}
	if r.IsExpiredAt(now) {
		return ErrAlreadyExpired
	}

	r.Status = ReservationConfirmed
	r.ConfirmedAt = &now
	r.UpdatedAt = now
	return nil
}

func (r *Reservation) Cancel(now time.Time, reason string) error {
	if !r.CanTransitionTo(ReservationCancelled) {
		return ErrInvalidState
	}

	r.Status = ReservationCancelled
	r.CancelReason = reason
	r.CancelledAt = &now
	r.UpdatedAt = now
	return nil
}

func (r *Reservation) Expire(now time.Time) error {
	if r.Status != ReservationPending || !r.IsExpiredAt(now) {
		return ErrInvalidState
	}

	r.Status = ReservationExpired
	r.CancelledAt = &now
	r.UpdatedAt = now
	return nil
}

// Resync forces the status the ledger implies. Used only by reconciliation,
// where the ledger journal is authoritative.
func (r *Reservation) Resync(target ReservationStatus, at time.Time, reason string) {
	r.Status = target
	switch target {
	case ReservationConfirmed:
		r.ConfirmedAt = &at
	case ReservationCancelled, ReservationExpired:
		r.CancelledAt = &at
		if r.CancelReason == "" {
			r.CancelReason = reason
		}
	}
	r.UpdatedAt = at
}
