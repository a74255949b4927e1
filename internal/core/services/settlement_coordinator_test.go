package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
)

func success(res *domain.Reservation, key string) domain.SettlementOutcome {
	return domain.SettlementOutcome{
		ReservationID:  res.ID,
		Outcome:        domain.SettlementSuccess,
		Amount:         res.TotalAmount,
		IdempotencyKey: key,
	}
}

func TestOnSettlement_SuccessConfirmsOnce(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 4200, 3)
	ctx := context.Background()

	res, err := h.reserve(ctx, item(unit, 2))
	require.NoError(t, err)

	first, err := h.coordinator.OnSettlement(ctx, success(res, "pay-1"))
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.True(t, first.Record.Applied)
	assert.Equal(t, domain.ReservationConfirmed, first.Record.ResultStatus)

	replay, err := h.coordinator.OnSettlement(ctx, success(res, "pay-1"))
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Record.ResultStatus, replay.Record.ResultStatus)

	u := h.unit(t, unit.ID)
	assert.Equal(t, 2, u.Sold)
	assert.Equal(t, 0, u.Held)
	assert.Equal(t, []domain.EventType{
		domain.EventReservationCreated,
		domain.EventReservationConfirmed,
	}, h.outboxTypes(t))
}

func TestOnSettlement_SecondKeyForConfirmedIsNotApplied(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 100, 3)
	ctx := context.Background()

	res, err := h.reserve(ctx, item(unit, 1))
	require.NoError(t, err)

	_, err = h.coordinator.OnSettlement(ctx, success(res, "pay-1"))
	require.NoError(t, err)

	again, err := h.coordinator.OnSettlement(ctx, success(res, "pay-2"))
	require.NoError(t, err)
	assert.False(t, again.Replayed)
	assert.False(t, again.Record.Applied)
	assert.Equal(t, "already confirmed", again.Record.Note)
	assert.Equal(t, 1, h.unit(t, unit.ID).Sold)
}

func TestOnSettlement_KeyReusedForOtherReservation(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 100, 3)
	ctx := context.Background()

	a, err := h.reserve(ctx, item(unit, 1))
	require.NoError(t, err)
	b, err := h.reserve(ctx, item(unit, 1))
	require.NoError(t, err)

	_, err = h.coordinator.OnSettlement(ctx, success(a, "pay-1"))
	require.NoError(t, err)

	_, err = h.coordinator.OnSettlement(ctx, success(b, "pay-1"))
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)

	stored, err := h.service.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationPending, stored.Status)
}

func TestOnSettlement_AmountMismatchIsRejected(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 100, 3)
	ctx := context.Background()

	res, err := h.reserve(ctx, item(unit, 1))
	require.NoError(t, err)

	outcome := success(res, "pay-1")
	outcome.Amount = 99

	result, err := h.coordinator.OnSettlement(ctx, outcome)
	require.NoError(t, err)
	assert.False(t, result.Record.Applied)
	assert.Equal(t, domain.ReservationPending, result.Record.ResultStatus)
	assert.Contains(t, result.Record.Note, "amount mismatch")
	assert.Contains(t, h.outboxTypes(t), domain.EventSettlementRejected)
	assert.Equal(t, 1, h.unit(t, unit.ID).Held)
}

// The payment arrives after the sweeper already expired the hold.
func TestSettlementAfterExpiryScenario(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 100, 1)
	ctx := context.Background()

	res, err := h.reserve(ctx, item(unit, 1))
	require.NoError(t, err)

	h.clock.Advance(20 * time.Minute)
	_, err = h.service.Expire(ctx, res.ID)
	require.NoError(t, err)

	result, err := h.coordinator.OnSettlement(ctx, success(res, "late-pay"))
	require.NoError(t, err)
	assert.False(t, result.Record.Applied)
	assert.Equal(t, domain.ReservationExpired, result.Record.ResultStatus)

	types := h.outboxTypes(t)
	assert.Equal(t, domain.EventSettlementRejected, types[len(types)-1])

	u := h.unit(t, unit.ID)
	assert.Equal(t, 0, u.Sold)
	assert.Equal(t, 1, u.Available())
}

func TestOnSettlement_SuccessPastDueWithoutSweep(t *testing.T) {
	h := newHarness(t)
	unit := h.addUnit(t, "GA", 100, 1)
	ctx := context.Background()

	res, err := h.reserve(ctx, item(unit, 1))
	require.NoError(t, err)
	h.clock.Advance(15 * time.Minute)

	result, err := h.coordinator.OnSettlement(ctx, success(res, "pay-1"))
	require.NoError(t, err)
	assert.False(t, result.Record.Applied)
	assert.Equal(t, "hold expired before payment settled", result.Record.Note)
	assert.Equal(t, 0, h.unit(t, unit.ID).Sold)
}

func TestOnSettlement_Failure(t *testing.T) {
	t.Run("cancels pending", func(t *testing.T) {
		h := newHarness(t)
		unit := h.addUnit(t, "GA", 100, 2)
		ctx := context.Background()

		res, err := h.reserve(ctx, item(unit, 2))
		require.NoError(t, err)

		result, err := h.coordinator.OnSettlement(ctx, domain.SettlementOutcome{
			ReservationID:  res.ID,
			Outcome:        domain.SettlementFailure,
			IdempotencyKey: "fail-1",
		})
		require.NoError(t, err)
		assert.True(t, result.Record.Applied)
		assert.Equal(t, domain.ReservationCancelled, result.Record.ResultStatus)
		assert.Equal(t, 0, h.unit(t, unit.ID).Held)

		stored, err := h.service.Get(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, "payment failed", stored.CancelReason)
	})

	t.Run("ignored after confirm", func(t *testing.T) {
		h := newHarness(t)
		unit := h.addUnit(t, "GA", 100, 2)
		ctx := context.Background()

		res, err := h.reserve(ctx, item(unit, 1))
		require.NoError(t, err)
		_, err = h.coordinator.OnSettlement(ctx, success(res, "pay-1"))
		require.NoError(t, err)

		result, err := h.coordinator.OnSettlement(ctx, domain.SettlementOutcome{
			ReservationID:  res.ID,
			Outcome:        domain.SettlementFailure,
			IdempotencyKey: "fail-1",
		})
		require.NoError(t, err)
		assert.False(t, result.Record.Applied)
		assert.Equal(t, domain.ReservationConfirmed, result.Record.ResultStatus)
		assert.Equal(t, 1, h.unit(t, unit.ID).Sold)
	})
}

func TestOnSettlement_UnknownReservationDoesNotKeepClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	outcome := domain.SettlementOutcome{
		ReservationID:  uuid.New(),
		Outcome:        domain.SettlementSuccess,
		Amount:         100,
		IdempotencyKey: "pay-404",
	}

	_, err := h.coordinator.OnSettlement(ctx, outcome)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)

	_, err = h.store.Settlements().GetByKey(ctx, "pay-404")
	assert.Error(t, err, "the claim is rolled back with the transaction")
}

func TestOnSettlement_InvalidOutcome(t *testing.T) {
	h := newHarness(t)

	_, err := h.coordinator.OnSettlement(context.Background(), domain.SettlementOutcome{
		ReservationID:  uuid.New(),
		Outcome:        "MAYBE",
		IdempotencyKey: "k",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
