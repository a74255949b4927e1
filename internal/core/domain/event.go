package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventReservationCreated   EventType = "reservation.created"
	EventReservationConfirmed EventType = "reservation.confirmed"
	EventReservationCancelled EventType = "reservation.cancelled"
	EventReservationExpired   EventType = "reservation.expired"
	EventSettlementRejected   EventType = "settlement.rejected"
)

// ReservationEvent is the payload published for payment, mail and reporting consumers.
type ReservationEvent struct {
	Type          EventType         `json:"type"`
	ReservationID uuid.UUID         `json:"reservation_id"`
	UserID        uuid.UUID         `json:"user_id"`
	EventID       uuid.UUID         `json:"event_id"`
	TotalAmount   int64             `json:"total_amount"`
	Status        ReservationStatus `json:"status"`
	Reason        string            `json:"reason,omitempty"`
	ExpiresAt     time.Time         `json:"expires_at"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

type OutboxMessage struct {
	ID          uuid.UUID
	AggregateID uuid.UUID
	EventType   EventType
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
	Attempts    int
	LastError   string

	// ClaimedUntil is set while a relay is publishing the message.
	ClaimedUntil *time.Time
}

func NewReservationEvent(eventType EventType, r *Reservation, reason string, now time.Time) ReservationEvent {
	return ReservationEvent{
		Type:          eventType,
		ReservationID: r.ID,
		UserID:        r.UserID,
		EventID:       r.EventID,
		TotalAmount:   r.TotalAmount,
		Status:        r.Status,
		Reason:        reason,
		ExpiresAt:     r.ExpiresAt,
		OccurredAt:    now,
	}
}

func NewOutboxMessage(evt ReservationEvent) (OutboxMessage, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return OutboxMessage{}, err
	}

	return OutboxMessage{
		ID:          uuid.New(),
		AggregateID: evt.ReservationID,
		EventType:   evt.Type,
		Payload:     payload,
		CreatedAt:   evt.OccurredAt,
	}, nil
}
