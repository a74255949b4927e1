package services_test

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/adapter/cache"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/adapter/repository/memory"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/ports/mocks"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/services"
)

func TestCreate_Success(t *testing.T) {
	h := newHarness(t)
	ga := h.addUnit(t, "GA", 2500, 10)
	vip := h.addUnit(t, "VIP", 9000, 2)

	res, err := h.reserve(context.Background(), item(ga, 2), item(vip, 1), item(ga, 1))

	require.NoError(t, err)
	assert.Equal(t, domain.ReservationPending, res.Status)
	assert.Equal(t, int64(3*2500+9000), res.TotalAmount)
	assert.Equal(t, epoch.Add(15*time.Minute), res.ExpiresAt)
	assert.Len(t, res.Items, 2, "duplicate units are merged")
	assert.True(t, res.Items[0].UnitID.String() < res.Items[1].UnitID.String(), "items are sorted by unit id")

	assert.Equal(t, 3, h.unit(t, ga.ID).Held)
	assert.Equal(t, 1, h.unit(t, vip.ID).Held)
	assert.Equal(t, []domain.EventType{domain.EventReservationCreated}, h.outboxTypes(t))
}

func TestCreate_InvalidInput(t *testing.T) {
	h := newHarness(t)
	ga := h.addUnit(t, "GA", 100, 5)
	ctx := context.Background()

	tests := []struct {
		name string
		req  services.CreateReservationRequest
	}{
		{"bad user", services.CreateReservationRequest{UserID: "nope", EventID: h.eventID.String(), Items: []services.ReservationItemRequest{item(ga, 1)}}},
		{"bad event", services.CreateReservationRequest{UserID: uuid.New().String(), EventID: "nope", Items: []services.ReservationItemRequest{item(ga, 1)}}},
		{"no items", services.CreateReservationRequest{UserID: uuid.New().String(), EventID: h.eventID.String()}},
		{"zero quantity", services.CreateReservationRequest{UserID: uuid.New().String(), EventID: h.eventID.String(), Items: []services.ReservationItemRequest{item(ga, 0)}}},
		{"wrong event", services.CreateReservationRequest{UserID: uuid.New().String(), EventID: uuid.New().String(), Items: []services.ReservationItemRequest{item(ga, 1)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.service.Create(ctx, tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}

	assert.Equal(t, 0, h.unit(t, ga.ID).Held)
}

func TestCreate_RejectsQuantitiesBeyondColumnRange(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 100, 5)
	ctx := context.Background()

	_, err := h.reserve(ctx, item(unit, math.MaxInt), item(unit, math.MaxInt), item(unit, 4))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = h.reserve(ctx, item(unit, domain.MaxQuantity), item(unit, 1))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	assert.Equal(t, 0, h.unit(t, unit.ID).Held)
	assert.Empty(t, h.outboxTypes(t))
}

func TestCreate_UnknownUnit(t *testing.T) {
	h := newHarness(t)

	_, err := h.reserve(context.Background(), services.ReservationItemRequest{UnitID: uuid.New().String(), Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrUnitNotFound)
}

func TestCreate_ReleasesEarlierHoldsWhenLaterUnitIsFull(t *testing.T) {
	h := newHarness(t)
	a := h.addUnit(t, "A", 100, 5)
	b := h.addUnit(t, "B", 100, 1)
	ctx := context.Background()

	_, err := h.reserve(ctx, item(b, 1))
	require.NoError(t, err)

	_, err = h.reserve(ctx, item(a, 2), item(b, 1))

	var capErr *domain.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, b.ID, capErr.UnitID)
	assert.Equal(t, 0, capErr.Available)
	assert.Equal(t, 0, h.unit(t, a.ID).Held)
	assert.Equal(t, 1, h.unit(t, b.ID).Held)
}

func TestCreate_ConcurrentRequestsNeverOversell(t *testing.T) {
	const capacity = 25

	for _, attempts := range []int{capacity, capacity + 1} {
		h := newHarness(t)
		unit := h.addUnit(t, "GA", 100, capacity)

		var ok, rejected atomic.Int32
		var g errgroup.Group
		for i := 0; i < attempts; i++ {
			g.Go(func() error {
				_, err := h.reserve(context.Background(), item(unit, 1))
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, domain.ErrInsufficientCapacity):
					rejected.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, int32(capacity), ok.Load())
		assert.Equal(t, int32(attempts-capacity), rejected.Load())
		assert.Equal(t, capacity, h.unit(t, unit.ID).Held)
	}
}

func TestCapacityTwoScenario(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "Floor", 5000, 2)
	ctx := context.Background()

	first, err := h.reserve(ctx, item(unit, 1))
	require.NoError(t, err)
	second, err := h.reserve(ctx, item(unit, 1))
	require.NoError(t, err)

	_, err = h.reserve(ctx, item(unit, 1))
	require.ErrorIs(t, err, domain.ErrInsufficientCapacity)

	_, err = h.service.Confirm(ctx, first.ID)
	require.NoError(t, err)
	_, err = h.service.Cancel(ctx, second.ID, "changed mind")
	require.NoError(t, err)

	u := h.unit(t, unit.ID)
	assert.Equal(t, 0, u.Held)
	assert.Equal(t, 1, u.Sold)

	third, err := h.reserve(ctx, item(unit, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationPending, third.Status)

	u = h.unit(t, unit.ID)
	assert.Equal(t, 1, u.Held)
	assert.Equal(t, 1, u.Sold)
	assert.Equal(t, 0, u.Available())
}

func TestConfirm(t *testing.T) {
	t.Run("pending within window", func(t *testing.T) {
		h := newHarness(t)
		unit := h.addUnit(t, "GA", 100, 3)
		ctx := context.Background()

		res, err := h.reserve(ctx, item(unit, 2))
		require.NoError(t, err)

		confirmed, err := h.service.Confirm(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationConfirmed, confirmed.Status)
		assert.NotNil(t, confirmed.ConfirmedAt)

		u := h.unit(t, unit.ID)
		assert.Equal(t, 0, u.Held)
		assert.Equal(t, 2, u.Sold)
	})

	t.Run("past expiry is rejected", func(t *testing.T) {
		h := newHarness(t)
		unit := h.addUnit(t, "GA", 100, 3)
		ctx := context.Background()

		res, err := h.reserve(ctx, item(unit, 1))
		require.NoError(t, err)

		h.clock.Advance(15 * time.Minute)

		_, err = h.service.Confirm(ctx, res.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyExpired)
		assert.Equal(t, 1, h.unit(t, unit.ID).Held)
	})

	t.Run("confirm twice is invalid", func(t *testing.T) {
		h := newHarness(t)
		unit := h.addUnit(t, "GA", 100, 3)
		ctx := context.Background()

		res, err := h.reserve(ctx, item(unit, 1))
		require.NoError(t, err)
		_, err = h.service.Confirm(ctx, res.ID)
		require.NoError(t, err)

		_, err = h.service.Confirm(ctx, res.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.Equal(t, 1, h.unit(t, unit.ID).Sold)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.service.Confirm(context.Background(), uuid.New())
		assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	})
}

func TestCreateThenCancelRestoresHeld(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 100, 4)
	ctx := context.Background()

	before := h.unit(t, unit.ID).Held

	res, err := h.reserve(ctx, item(unit, 3))
	require.NoError(t, err)

	cancelled, err := h.service.Cancel(ctx, res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, cancelled.Status)
	assert.Equal(t, "cancelled by user", cancelled.CancelReason)
	assert.Equal(t, before, h.unit(t, unit.ID).Held)
}

func TestCancel_TwiceReleasesOnce(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 100, 4)
	ctx := context.Background()

	res, err := h.reserve(ctx, item(unit, 2))
	require.NoError(t, err)
	_, err = h.reserve(ctx, item(unit, 1))
	require.NoError(t, err)

	_, err = h.service.Cancel(ctx, res.ID, "first")
	require.NoError(t, err)
	again, err := h.service.Cancel(ctx, res.ID, "second")
	require.NoError(t, err)

	assert.Equal(t, domain.ReservationCancelled, again.Status)
	assert.Equal(t, "first", again.CancelReason)
	assert.Equal(t, 1, h.unit(t, unit.ID).Held, "the other reservation keeps its hold")
}

func TestCancel_ConfirmedRefundsSoldCapacity(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 100, 4)
	ctx := context.Background()

	res, err := h.reserve(ctx, item(unit, 2))
	require.NoError(t, err)
	_, err = h.service.Confirm(ctx, res.ID)
	require.NoError(t, err)

	cancelled, err := h.service.Cancel(ctx, res.ID, "refund")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, cancelled.Status)

	u := h.unit(t, unit.ID)
	assert.Equal(t, 0, u.Sold)
	assert.Equal(t, 4, u.Available())
	assert.Equal(t, []domain.EventType{
		domain.EventReservationCreated,
		domain.EventReservationConfirmed,
		domain.EventReservationCancelled,
	}, h.outboxTypes(t))
}

func TestCancelPending_LeavesConfirmedAlone(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 100, 4)
	ctx := context.Background()

	res, err := h.reserve(ctx, item(unit, 1))
	require.NoError(t, err)
	_, err = h.service.Confirm(ctx, res.ID)
	require.NoError(t, err)

	got, changed, err := h.service.CancelPending(ctx, res.ID, "payment failed")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.ReservationConfirmed, got.Status)
	assert.Equal(t, 1, h.unit(t, unit.ID).Sold)
}

func TestExpire(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 100, 4)
	ctx := context.Background()

	res, err := h.reserve(ctx, item(unit, 2))
	require.NoError(t, err)

	_, err = h.service.Expire(ctx, res.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "not yet due")

	h.clock.Advance(16 * time.Minute)

	expired, err := h.service.Expire(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, expired.Status)
	assert.Equal(t, 0, h.unit(t, unit.ID).Held)

	_, err = h.service.Expire(ctx, res.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 0, h.unit(t, unit.ID).Held)

	stored, err := h.service.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, stored.Status)

	cancelled, err := h.service.Cancel(ctx, res.ID, "too late")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, cancelled.Status)
}

func TestConfirmAndExpireRace(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 100, 1)
	ctx := context.Background()

	res, err := h.reserve(ctx, item(unit, 1))
	require.NoError(t, err)
	h.clock.Advance(15 * time.Minute)

	var g errgroup.Group
	g.Go(func() error {
		_, err := h.service.Confirm(ctx, res.ID)
		if err != nil && !errors.Is(err, domain.ErrInvalidState) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		_, err := h.service.Expire(ctx, res.ID)
		if err != nil && !errors.Is(err, domain.ErrInvalidState) {
			return err
		}
		return nil
	})
	require.NoError(t, g.Wait())

	stored, err := h.service.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, stored.Status)

	u := h.unit(t, unit.ID)
	assert.Equal(t, 0, u.Held)
	assert.Equal(t, 0, u.Sold)
}

func TestCreate_ReleasesHoldsWhenPersistFails(t *testing.T) {
	mockInventory := mocks.NewInventoryRepository(t)
	mockReservations := mocks.NewReservationRepository(t)
	store := memory.NewStore(nil)

	ledger := services.NewInventoryLedger(passthroughTx{}, mockInventory, nil, services.WithRetryPolicy(fastRetry()))
	service := services.NewReservationService(passthroughTx{}, ledger, mockReservations, store.Outbox(), services.WithRetryPolicy(fastRetry()))

	ctx := context.Background()
	eventID := uuid.New()
	unit := domain.InventoryUnit{ID: uuid.New(), EventID: eventID, Name: "GA", UnitPrice: 100, TotalCapacity: 5}

	mockInventory.On("GetUnits", mock.Anything, []uuid.UUID{unit.ID}).Return([]domain.InventoryUnit{unit}, nil)
	mockInventory.On("RecordOperation", mock.Anything, mock.MatchedBy(func(op domain.LedgerOperation) bool {
		return op.Kind == domain.LedgerHold
	})).Return(true, nil).Once()
	mockInventory.On("ApplyHold", mock.Anything, unit.ID, 2).Return(&unit, nil).Once()
	mockReservations.On("Create", mock.Anything, mock.AnythingOfType("*domain.Reservation")).Return(errors.New("disk full")).Once()
	mockReservations.On("GetByID", mock.Anything, mock.AnythingOfType("uuid.UUID")).Return(nil, domain.ErrReservationNotFound).Once()
	mockInventory.On("RecordOperation", mock.Anything, mock.MatchedBy(func(op domain.LedgerOperation) bool {
		return op.Kind == domain.LedgerRelease
	})).Return(true, nil).Once()
	mockInventory.On("ApplyRelease", mock.Anything, unit.ID, 2).Return(&unit, nil).Once()

	_, err := service.Create(ctx, services.CreateReservationRequest{
		UserID:  uuid.New().String(),
		EventID: eventID.String(),
		Items:   []services.ReservationItemRequest{{UnitID: unit.ID.String(), Quantity: 2}},
	})

	assert.EqualError(t, err, "disk full")
	assert.Empty(t, store.Outbox().All(ctx))
}

func TestCreate_CommitLookupOutlivesCancelledRequest(t *testing.T) {
	mockInventory := mocks.NewInventoryRepository(t)
	mockReservations := mocks.NewReservationRepository(t)
	store := memory.NewStore(nil)

	ledger := services.NewInventoryLedger(passthroughTx{}, mockInventory, nil, services.WithRetryPolicy(fastRetry()))
	service := services.NewReservationService(passthroughTx{}, ledger, mockReservations, store.Outbox(), services.WithRetryPolicy(fastRetry()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eventID := uuid.New()
	unit := domain.InventoryUnit{ID: uuid.New(), EventID: eventID, Name: "GA", UnitPrice: 100, TotalCapacity: 5}
	stored := &domain.Reservation{ID: uuid.New(), EventID: eventID, Status: domain.ReservationPending}

	mockInventory.On("GetUnits", mock.Anything, []uuid.UUID{unit.ID}).Return([]domain.InventoryUnit{unit}, nil)
	mockInventory.On("RecordOperation", mock.Anything, mock.MatchedBy(func(op domain.LedgerOperation) bool {
		return op.Kind == domain.LedgerHold
	})).Return(true, nil).Once()
	mockInventory.On("ApplyHold", mock.Anything, unit.ID, 1).Return(&unit, nil).Once()
	mockReservations.On("Create", mock.Anything, mock.AnythingOfType("*domain.Reservation")).
		Run(func(mock.Arguments) { cancel() }).
		Return(errors.New("connection reset by peer")).Once()
	mockReservations.On("GetByID", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.AnythingOfType("uuid.UUID")).Return(stored, nil).Once()

	res, err := service.Create(ctx, services.CreateReservationRequest{
		UserID:  uuid.New().String(),
		EventID: eventID.String(),
		Items:   []services.ReservationItemRequest{{UnitID: unit.ID.String(), Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Same(t, stored, res)
}

func TestCreate_RetriesTransientHold(t *testing.T) {
	mockInventory := mocks.NewInventoryRepository(t)
	mockReservations := mocks.NewReservationRepository(t)
	store := memory.NewStore(nil)

	ledger := services.NewInventoryLedger(passthroughTx{}, mockInventory, nil, services.WithRetryPolicy(fastRetry()))
	service := services.NewReservationService(passthroughTx{}, ledger, mockReservations, store.Outbox(), services.WithRetryPolicy(fastRetry()))

	ctx := context.Background()
	eventID := uuid.New()
	unit := domain.InventoryUnit{ID: uuid.New(), EventID: eventID, Name: "GA", UnitPrice: 100, TotalCapacity: 5}

	mockInventory.On("GetUnits", mock.Anything, []uuid.UUID{unit.ID}).Return([]domain.InventoryUnit{unit}, nil)
	mockInventory.On("RecordOperation", mock.Anything, mock.AnythingOfType("domain.LedgerOperation")).Return(true, nil).Twice()
	mockInventory.On("ApplyHold", mock.Anything, unit.ID, 1).Return(nil, domain.Transient(errors.New("lock timeout"))).Once()
	mockInventory.On("ApplyHold", mock.Anything, unit.ID, 1).Return(&unit, nil).Once()
	mockReservations.On("Create", mock.Anything, mock.AnythingOfType("*domain.Reservation")).Return(nil).Once()

	res, err := service.Create(ctx, services.CreateReservationRequest{
		UserID:  uuid.New().String(),
		EventID: eventID.String(),
		Items:   []services.ReservationItemRequest{{UnitID: unit.ID.String(), Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(100), res.TotalAmount)
}

func TestCreate_InvalidatesAvailabilityCache(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	h := newHarness(t)
	availability := cache.NewAvailabilityCache(db, time.Minute)

	ledger := services.NewInventoryLedger(h.store, h.store.Inventory(), availability, h.opts...)
	service := services.NewReservationService(h.store, ledger, h.store.Reservations(), h.store.Outbox(), h.opts...)

	unit := h.addUnit(t, "GA", 100, 3)
	mockRedis.ExpectDel("availability:" + h.eventID.String()).SetVal(1)

	_, err := service.Create(context.Background(), services.CreateReservationRequest{
		UserID:  uuid.New().String(),
		EventID: h.eventID.String(),
		Items:   []services.ReservationItemRequest{item(unit, 1)},
	})
	require.NoError(t, err)

	if err := mockRedis.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
