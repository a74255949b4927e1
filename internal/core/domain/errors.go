package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrInvalidState         = errors.New("invalid reservation state")
	ErrAlreadyExpired       = fmt.Errorf("%w: reservation hold already expired", ErrInvalidState)
	ErrTransientStore       = errors.New("transient store error")

	ErrReservationNotFound = errors.New("reservation not found")
	ErrUnitNotFound        = errors.New("inventory unit not found")
	ErrLedgerUnderflow     = errors.New("ledger underflow")
	ErrVersionConflict     = errors.New("version conflict")
	ErrIdempotencyConflict = errors.New("idempotency key reused for a different reservation")
	ErrInvalidRequest      = errors.New("invalid request")
)

// CapacityError reports which unit could not satisfy a hold.
type CapacityError struct {
	UnitID    uuid.UUID
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity on unit %s: requested %d, available %d", e.UnitID, e.Requested, e.Available)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return fmt.Sprintf("%s: %v", ErrTransientStore, e.err)
}

func (e *transientError) Unwrap() error {
	return e.err
}

func (e *transientError) Is(target error) bool {
	return target == ErrTransientStore
}

// Transient marks err as retryable. The original error stays reachable through errors.Unwrap.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return err
	}
	return &transientError{err: err}
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStore)
}

func InvalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
