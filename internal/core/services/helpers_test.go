package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/adapter/repository/memory"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/services"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/clock"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/retry"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store       *memory.Store
	clock       *clock.Manual
	ledger      *services.InventoryLedger
	service     *services.ReservationService
	coordinator *services.SettlementCoordinator
	eventID     uuid.UUID
	opts        []services.Option
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clk := clock.NewManual(epoch)
	store := memory.NewStore(clk)
	opts := []services.Option{
		services.WithClock(clk),
		services.WithRetryPolicy(fastRetry()),
		services.WithHoldDuration(15 * time.Minute),
	}

	ledger := services.NewInventoryLedger(store, store.Inventory(), nil, opts...)
	service := services.NewReservationService(store, ledger, store.Reservations(), store.Outbox(), opts...)
	coordinator := services.NewSettlementCoordinator(store, store.Settlements(), store.Reservations(), service, opts...)

	return &harness{
		store:       store,
		clock:       clk,
		ledger:      ledger,
		service:     service,
		coordinator: coordinator,
		eventID:     uuid.New(),
		opts:        opts,
	}
}

func (h *harness) addUnit(t *testing.T, name string, price int64, capacity int) *domain.InventoryUnit {
	t.Helper()

	unit, err := h.ledger.CreateUnit(context.Background(), services.CreateUnitRequest{
		EventID:       h.eventID.String(),
		Name:          name,
		UnitPrice:     price,
		TotalCapacity: capacity,
	})
	require.NoError(t, err)
	return unit
}

func (h *harness) unit(t *testing.T, id uuid.UUID) *domain.InventoryUnit {
	t.Helper()

	unit, err := h.store.Inventory().GetUnit(context.Background(), id)
	require.NoError(t, err)
	require.True(t, unit.Consistent(), "held + sold must stay within capacity: %+v", unit)
	return unit
}

func (h *harness) reserve(ctx context.Context, items ...services.ReservationItemRequest) (*domain.Reservation, error) {
	return h.service.Create(ctx, services.CreateReservationRequest{
		UserID:  uuid.New().String(),
		EventID: h.eventID.String(),
		Items:   items,
	})
}

func item(unit *domain.InventoryUnit, qty int) services.ReservationItemRequest {
	return services.ReservationItemRequest{UnitID: unit.ID.String(), Quantity: qty}
}

func (h *harness) outboxTypes(t *testing.T) []domain.EventType {
	t.Helper()

	var types []domain.EventType
	for _, m := range h.store.Outbox().All(context.Background()) {
		types = append(types, m.EventType)
	}
	return types
}

// passthroughTx runs fn without a transaction, for tests built on mocks.
type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
