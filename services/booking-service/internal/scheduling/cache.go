package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// ProviderSource is the authoritative provider directory behind the cache.
type ProviderSource interface {
	ProviderExists(ctx context.Context, id string) (bool, error)
	WorkingHours(ctx context.Context, providerID string) (model.WorkingHours, error)
	SetWorkingHours(ctx context.Context, providerID string, day time.Weekday, hours model.DayHours) error
}

// CachedProviderDirectory is a read-through Redis cache of provider working hours. Redis failures
// degrade to the source instead of failing the request.
type CachedProviderDirectory struct {
	source ProviderSource
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCachedProviderDirectory(source ProviderSource, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedProviderDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProviderDirectory{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		prefix: "clinicbook:hours:",
		logger: logger,
	}
}

func (c *CachedProviderDirectory) ProviderExists(ctx context.Context, id string) (bool, error) {
	return c.source.ProviderExists(ctx, id)
}

func (c *CachedProviderDirectory) WorkingHours(ctx context.Context, providerID string) (model.WorkingHours, error) {
	key := c.prefix + providerID
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var hours model.WorkingHours
		if jerr := json.Unmarshal(raw, &hours); jerr == nil {
			return hours, nil
		}
		c.logger.Warn("discarding corrupt working hours cache entry", "provider_id", providerID)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("working hours cache read failed", "err", err, "provider_id", providerID)
	}

	hours, err := c.source.WorkingHours(ctx, providerID)
	if err != nil {
		return hours, err
	}
	if payload, err := json.Marshal(hours); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("working hours cache write failed", "err", err, "provider_id", providerID)
		}
	}
	return hours, nil
}

// SetWorkingHours writes through to the source and drops the cached entry. A failed invalidation
// is logged; the entry then expires with its TTL.
func (c *CachedProviderDirectory) SetWorkingHours(ctx context.Context, providerID string, day time.Weekday, hours model.DayHours) error {
	if err := c.source.SetWorkingHours(ctx, providerID, day, hours); err != nil {
		return err
	}
	if err := c.Invalidate(ctx, providerID); err != nil && c.logger != nil {
		c.logger.Warn("working hours cache invalidation failed", "err", err, "provider_id", providerID)
	}
	return nil
}

func (c *CachedProviderDirectory) Invalidate(ctx context.Context, providerID string) error {
	return c.rdb.Del(ctx, c.prefix+providerID).Err()
}
