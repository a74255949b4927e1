package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/metrics"
)

func TestMetrics_CountersAndRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ReservationOp("create", "ok")
	m.ReservationOp("create", "ok")
	m.ReservationOp("create", "insufficient_capacity")
	m.Swept("expired", 3)
	m.Swept("failed", 0)
	m.StoreRetry()
	m.ObserveHTTP("/reservations", "POST", "201", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Reservations.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reservations.WithLabelValues("create", "insufficient_capacity")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweptReservation.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreRetries))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ReservationOp("create", "ok")
		m.LedgerOp("HOLD", "ok")
		m.Swept("expired", 1)
		m.Settlement("SUCCESS", "applied")
		m.Repair("orphan_hold")
		m.Outbox("published", 2)
		m.StoreRetry()
		m.ObserveHTTP("/", "GET", "200", time.Millisecond)
	})
}
