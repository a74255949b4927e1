package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/services"
)

const retryAfterSeconds = "1"

type errorResponse struct {
	Error     string     `json:"error"`
	Code      string     `json:"code"`
	UnitID    *uuid.UUID `json:"unit_id,omitempty"`
	Requested int        `json:"requested,omitempty"`
	Available *int       `json:"available,omitempty"`
}

type reservationItemResponse struct {
	UnitID    uuid.UUID `json:"unit_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
}

type reservationResponse struct {
	ID           uuid.UUID                 `json:"id"`
	UserID       uuid.UUID                 `json:"user_id"`
	EventID      uuid.UUID                 `json:"event_id"`
	Status       domain.ReservationStatus  `json:"status"`
	TotalAmount  int64                     `json:"total_amount"`
	Items        []reservationItemResponse `json:"items"`
	CancelReason string                    `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	ExpiresAt    time.Time                 `json:"expires_at"`
	ConfirmedAt  *time.Time                `json:"confirmed_at,omitempty"`
	CancelledAt  *time.Time                `json:"cancelled_at,omitempty"`
}

type unitResponse struct {
	ID            uuid.UUID `json:"id"`
	EventID       uuid.UUID `json:"event_id"`
	Name          string    `json:"name"`
	UnitPrice     int64     `json:"unit_price"`
	TotalCapacity int       `json:"total_capacity"`
	Held          int       `json:"held"`
	Sold          int       `json:"sold"`
	Available     int       `json:"available"`
}

type settlementResponse struct {
	IdempotencyKey string                       `json:"idempotency_key"`
	ReservationID  uuid.UUID                    `json:"reservation_id"`
	Outcome        domain.SettlementOutcomeKind `json:"outcome"`
	Applied        bool                         `json:"applied"`
	Replayed       bool                         `json:"replayed"`
	Status         domain.ReservationStatus     `json:"status"`
	Note           string                       `json:"note,omitempty"`
	ProcessedAt    time.Time                    `json:"processed_at"`
}

func newReservationResponse(r *domain.Reservation) reservationResponse {
	items := make([]reservationItemResponse, len(r.Items))
	for i, it := range r.Items {
		items[i] = reservationItemResponse{UnitID: it.UnitID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	return reservationResponse{
		ID:           r.ID,
		UserID:       r.UserID,
		EventID:      r.EventID,
		Status:       r.Status,
		TotalAmount:  r.TotalAmount,
		Items:        items,
		CancelReason: r.CancelReason,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
		ConfirmedAt:  r.ConfirmedAt,
		CancelledAt:  r.CancelledAt,
	}
}

func newUnitResponse(u domain.InventoryUnit) unitResponse {
	return unitResponse{
		ID:            u.ID,
		EventID:       u.EventID,
		Name:          u.Name,
		UnitPrice:     u.UnitPrice,
		TotalCapacity: u.TotalCapacity,
		Held:          u.Held,
		Sold:          u.Sold,
		Available:     u.Available(),
	}
}

func newSettlementResponse(res *services.SettlementResult) settlementResponse {
	rec := res.Record
	return settlementResponse{
		IdempotencyKey: rec.IdempotencyKey,
		ReservationID:  rec.ReservationID,
		Outcome:        rec.Outcome,
		Applied:        rec.Applied,
		Replayed:       res.Replayed,
		Status:         rec.ResultStatus,
		Note:           rec.Note,
		ProcessedAt:    rec.ProcessedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto status codes. Unknown errors are logged
// and reported as a bare 500.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var capErr *domain.CapacityError

	switch {
	case errors.As(err, &capErr):
		available := capErr.Available
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     err.Error(),
			Code:      "insufficient_capacity",
			UnitID:    &capErr.UnitID,
			Requested: capErr.Requested,
			Available: &available,
		})
	case errors.Is(err, domain.ErrInsufficientCapacity):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "insufficient_capacity"})
	case errors.Is(err, domain.ErrAlreadyExpired):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "already_expired"})
	case errors.Is(err, domain.ErrInvalidState):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "invalid_state"})
	case errors.Is(err, domain.ErrReservationNotFound), errors.Is(err, domain.ErrUnitNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, domain.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_request"})
	case errors.Is(err, domain.ErrIdempotencyConflict):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "idempotency_conflict"})
	case domain.IsTransient(err):
		log.Warn().Err(err).Msg("store unavailable")
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "service temporarily unavailable", Code: "unavailable"})
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: "internal"})
	}
}

func decodeJSON(r *http.Request, dst any) error {
	return decode(r, dst, false)
}

// decodeOptionalJSON leaves dst untouched when the body is empty.
func decodeOptionalJSON(r *http.Request, dst any) error {
	return decode(r, dst, true)
}

func decode(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.InvalidRequest("invalid json body: %v", err)
	}
	return nil
}

func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.InvalidRequest("invalid %s id", what)
	}
	return id, nil
}
