package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/services"
)

type InventoryHandler struct {
	ledger *services.InventoryLedger
	log    zerolog.Logger
}

func NewInventoryHandler(ledger *services.InventoryLedger, log zerolog.Logger) *InventoryHandler {
	return &InventoryHandler{ledger: ledger, log: log}
}

func (h *InventoryHandler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req services.CreateUnitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	unit, err := h.ledger.CreateUnit(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, newUnitResponse(*unit))
}

func (h *InventoryHandler) GetUnit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "unit")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	unit, err := h.ledger.GetUnit(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, newUnitResponse(*unit))
}

// EventAvailability lists every unit of an event. Counts may lag by the
// cache TTL.
func (h *InventoryHandler) EventAvailability(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseID(mux.Vars(r)["id"], "event")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	units, err := h.ledger.EventAvailability(r.Context(), eventID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	out := make([]unitResponse, len(units))
	for i, u := range units {
		out[i] = newUnitResponse(u)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event_id": eventID,
		"units":    out,
	})
}
