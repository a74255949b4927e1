package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/services"
)

type ReservationHandler struct {
	svc *services.ReservationService
	log zerolog.Logger
}

func NewReservationHandler(svc *services.ReservationService, log zerolog.Logger) *ReservationHandler {
	return &ReservationHandler{svc: svc, log: log}
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	res, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, newReservationResponse(res))
}

func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "reservation")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	res, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, newReservationResponse(res))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel accepts an optional {"reason": "..."} body.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "reservation")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var req cancelRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	res, err := h.svc.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, newReservationResponse(res))
}
