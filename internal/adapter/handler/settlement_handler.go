package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/services"
)

const idempotencyHeader = "Idempotency-Key"

type SettlementHandler struct {
	coordinator *services.SettlementCoordinator
	log         zerolog.Logger
}

func NewSettlementHandler(coordinator *services.SettlementCoordinator, log zerolog.Logger) *SettlementHandler {
	return &SettlementHandler{coordinator: coordinator, log: log}
}

// Settle applies a payment outcome. The Idempotency-Key header wins over the
// key in the body; replays answer 200 with the stored result.
func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var outcome domain.SettlementOutcome
	if err := decodeJSON(r, &outcome); err != nil {
		writeError(w, h.log, err)
		return
	}
	if key := r.Header.Get(idempotencyHeader); key != "" {
		outcome.IdempotencyKey = key
	}

	result, err := h.coordinator.OnSettlement(r.Context(), outcome)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, newSettlementResponse(result))
}
