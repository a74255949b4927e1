package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
)

const DefaultAvailabilityTTL = 30 * time.Second

type cachedUnit struct {
	ID            uuid.UUID `json:"id"`
	EventID       uuid.UUID `json:"event_id"`
	Name          string    `json:"name"`
	UnitPrice     int64     `json:"unit_price"`
	TotalCapacity int       `json:"total_capacity"`
	Held          int       `json:"held"`
	Sold          int       `json:"sold"`
	Version       int64     `json:"version"`
}

// AvailabilityCache keeps the per-event unit list in Redis. Entries expire on
// their own, so a missed invalidation only serves stale counts until the TTL.
type AvailabilityCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewAvailabilityCache(client redis.Cmdable, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = DefaultAvailabilityTTL
	}
	return &AvailabilityCache{client: client, ttl: ttl}
}

func AvailabilityKey(eventID uuid.UUID) string {
	return fmt.Sprintf("availability:%s", eventID.String())
}

func (c *AvailabilityCache) GetEventAvailability(ctx context.Context, eventID uuid.UUID) ([]domain.InventoryUnit, bool, error) {
	data, err := c.client.Get(ctx, AvailabilityKey(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cached []cachedUnit
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, err
	}

	units := make([]domain.InventoryUnit, len(cached))
	for i, u := range cached {
		units[i] = domain.InventoryUnit{
			ID:            u.ID,
			EventID:       u.EventID,
			Name:          u.Name,
			UnitPrice:     u.UnitPrice,
			TotalCapacity: u.TotalCapacity,
			Held:          u.Held,
			Sold:          u.Sold,
			Version:       u.Version,
		}
	}
	return units, true, nil
}

func (c *AvailabilityCache) SetEventAvailability(ctx context.Context, eventID uuid.UUID, units []domain.InventoryUnit) error {
	data, err := EncodeUnits(units)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, AvailabilityKey(eventID), data, c.ttl).Err()
}

func (c *AvailabilityCache) InvalidateEvent(ctx context.Context, eventID uuid.UUID) error {
	return c.client.Del(ctx, AvailabilityKey(eventID)).Err()
}

// EncodeUnits is the cached representation of an availability list.
func EncodeUnits(units []domain.InventoryUnit) ([]byte, error) {
	cached := make([]cachedUnit, len(units))
	for i, u := range units {
		cached[i] = cachedUnit{
			ID:            u.ID,
			EventID:       u.EventID,
			Name:          u.Name,
			UnitPrice:     u.UnitPrice,
			TotalCapacity: u.TotalCapacity,
			Held:          u.Held,
			Sold:          u.Sold,
			Version:       u.Version,
		}
	}
	return json.Marshal(cached)
}
