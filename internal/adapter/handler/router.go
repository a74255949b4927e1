package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/metrics"
)

type RouterConfig struct {
	Reservations *ReservationHandler
	Settlements  *SettlementHandler
	Inventory    *InventoryHandler
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	Metrics        *metrics.Metrics
	Log            zerolog.Logger
}

func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(recoverer(cfg.Log), accessLog(cfg.Log, cfg.Metrics))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler).Methods(http.MethodGet)
	}

	r.HandleFunc("/reservations", cfg.Reservations.Create).Methods(http.MethodPost)
	r.HandleFunc("/reservations/{id}", cfg.Reservations.Get).Methods(http.MethodGet)
	r.HandleFunc("/reservations/{id}/cancel", cfg.Reservations.Cancel).Methods(http.MethodPost)

	r.HandleFunc("/settlements", cfg.Settlements.Settle).Methods(http.MethodPost)

	r.HandleFunc("/inventory-units", cfg.Inventory.CreateUnit).Methods(http.MethodPost)
	r.HandleFunc("/inventory-units/{id}", cfg.Inventory.GetUnit).Methods(http.MethodGet)
	r.HandleFunc("/events/{id}/availability", cfg.Inventory.EventAvailability).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found", Code: "not_found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: "method_not_allowed"})
	})

	return r
}
