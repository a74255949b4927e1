package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/adapter/cache"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
)

func TestAvailabilityCache_Miss(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	c := cache.NewAvailabilityCache(db, time.Minute)

	eventID := uuid.New()
	mockRedis.ExpectGet("availability:" + eventID.String()).RedisNil()

	units, hit, err := c.GetEventAvailability(context.Background(), eventID)

	assert.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, units)
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestAvailabilityCache_SetThenHit(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	c := cache.NewAvailabilityCache(db, time.Minute)

	eventID := uuid.New()
	units := []domain.InventoryUnit{
		{ID: uuid.New(), EventID: eventID, Name: "VIP", UnitPrice: 5000, TotalCapacity: 10, Held: 2, Sold: 3, Version: 4},
	}
	payload, err := cache.EncodeUnits(units)
	require.NoError(t, err)

	key := cache.AvailabilityKey(eventID)
	mockRedis.ExpectSet(key, payload, time.Minute).SetVal("OK")
	mockRedis.ExpectGet(key).SetVal(string(payload))

	require.NoError(t, c.SetEventAvailability(context.Background(), eventID, units))

	got, hit, err := c.GetEventAvailability(context.Background(), eventID)
	require.NoError(t, err)
	assert.True(t, hit)
	if assert.Len(t, got, 1) {
		assert.Equal(t, units[0].ID, got[0].ID)
		assert.Equal(t, 5, got[0].Available())
	}
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestAvailabilityCache_Invalidate(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	c := cache.NewAvailabilityCache(db, 0)

	eventID := uuid.New()
	mockRedis.ExpectDel("availability:" + eventID.String()).SetVal(1)

	assert.NoError(t, c.InvalidateEvent(context.Background(), eventID))
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestAvailabilityCache_GetError(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	c := cache.NewAvailabilityCache(db, time.Minute)

	eventID := uuid.New()
	mockRedis.ExpectGet(cache.AvailabilityKey(eventID)).SetErr(errors.New("connection refused"))

	_, hit, err := c.GetEventAvailability(context.Background(), eventID)
	assert.Error(t, err)
	assert.False(t, hit)
}
