package domain

import (
	"time"

	"github.com/google/uuid"
)

type SettlementOutcomeKind string

const (
	SettlementSuccess SettlementOutcomeKind = "SUCCESS"
	SettlementFailure SettlementOutcomeKind = "FAILURE"
)

type SettlementOutcome struct {
	ReservationID  uuid.UUID             `json:"reservation_id"`
	Outcome        SettlementOutcomeKind `json:"outcome"`
	Amount         int64                 `json:"amount"`
	IdempotencyKey string                `json:"idempotency_key"`
}

func (o SettlementOutcome) Validate() error {
	if o.ReservationID == uuid.Nil {
		return InvalidRequest("reservation id is required")
	}
	if o.IdempotencyKey == "" {
		return InvalidRequest("idempotency key is required")
	}
	if o.Outcome != SettlementSuccess && o.Outcome != SettlementFailure {
		return InvalidRequest("unknown settlement outcome %q", o.Outcome)
	}
	return nil
}

// SettlementRecord is the stored answer for one idempotency key.
type SettlementRecord struct {
	IdempotencyKey string
	ReservationID  uuid.UUID
	Outcome        SettlementOutcomeKind
	Amount         int64
	Applied        bool
	ResultStatus   ReservationStatus
	Note           string
	ProcessedAt    time.Time
}
