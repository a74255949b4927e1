// Package metrics holds the Prometheus collectors for the reservation engine.
//
// All methods are safe on a nil *Metrics so components can run without a
// registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reservation_engine"

type Metrics struct {
	Reservations     *prometheus.CounterVec
	LedgerOperations *prometheus.CounterVec
	SweptReservation *prometheus.CounterVec
	Settlements      *prometheus.CounterVec
	Reconciled       *prometheus.CounterVec
	OutboxMessages   *prometheus.CounterVec
	StoreRetries     prometheus.Counter
	HTTPDuration     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Reservation lifecycle operations by operation and result.",
		}, []string{"operation", "result"}),
		LedgerOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Inventory ledger operations by kind and result.",
		}, []string{"kind", "result"}),
		SweptReservation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_reservations_total",
			Help:      "Reservations handled by the expiry sweeper by result.",
		}, []string{"result"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settlement outcomes processed by outcome and result.",
		}, []string{"outcome", "result"}),
		Reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciler_repairs_total",
			Help:      "Repairs made by the reconciler by kind.",
		}, []string{"kind"}),
		OutboxMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_messages_total",
			Help:      "Outbox messages relayed by result.",
		}, []string{"result"}),
		StoreRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "Retries caused by transient store errors.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Reservations,
			m.LedgerOperations,
			m.SweptReservation,
			m.Settlements,
			m.Reconciled,
			m.OutboxMessages,
			m.StoreRetries,
			m.HTTPDuration,
		)
	}

	return m
}

func (m *Metrics) ReservationOp(operation, result string) {
	if m == nil {
		return
	}
	m.Reservations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) LedgerOp(kind, result string) {
	if m == nil {
		return
	}
	m.LedgerOperations.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Swept(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SweptReservation.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) Settlement(outcome, result string) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(outcome, result).Inc()
}

func (m *Metrics) Repair(kind string) {
	if m == nil {
		return
	}
	m.Reconciled.WithLabelValues(kind).Inc()
}

func (m *Metrics) Outbox(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.OutboxMessages.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) StoreRetry() {
	if m == nil {
		return
	}
	m.StoreRetries.Inc()
}

func (m *Metrics) ObserveHTTP(route, method, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(route, method, code).Observe(elapsed.Seconds())
}
