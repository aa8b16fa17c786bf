package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/askwhyharsh/nearcontacts/internal/location"
	"github.com/askwhyharsh/nearcontacts/internal/storage"
	"github.com/askwhyharsh/nearcontacts/pkg/logger"
)

// Cache maps normalized addresses to coordinates.
type Cache interface {
	Get(ctx context.Context, address string) (location.GeoPoint, bool, error)
	Put(ctx context.Context, address string, point location.GeoPoint) error
}

type RedisCache struct {
	redis storage.RedisClient
	ttl   time.Duration
}

func NewRedisCache(redisClient storage.RedisClient, ttl time.Duration) *RedisCache {
	return &RedisCache{
		redis: redisClient,
		ttl:   ttl,
	}
}

func (c *RedisCache) Get(ctx context.Context, address string) (location.GeoPoint, bool, error) {
	data, err := c.redis.Get(ctx, c.cacheKey(address))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return location.GeoPoint{}, false, nil
		}
		return location.GeoPoint{}, false, fmt.Errorf("get geocode cache: %w", err)
	}

	var point location.GeoPoint
	if err := json.Unmarshal([]byte(data), &point); err != nil {
		return location.GeoPoint{}, false, fmt.Errorf("get geocode cache: decode: %w", err)
	}

	return point, true, nil
}

func (c *RedisCache) Put(ctx context.Context, address string, point location.GeoPoint) error {
	data, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("put geocode cache: encode: %w", err)
	}

	if err := c.redis.Set(ctx, c.cacheKey(address), data, c.ttl); err != nil {
		return fmt.Errorf("put geocode cache: %w", err)
	}

	return nil
}

func (c *RedisCache) cacheKey(address string) string {
	return fmt.Sprintf("geocode:%s", Normalize(address))
}

// CachedGeocoder answers from the cache and falls through to next on a miss.
// Cache failures are logged and never fail the lookup.
type CachedGeocoder struct {
	next   Geocoder
	cache  Cache
	logger logger.Logger
}

func NewCachedGeocoder(next Geocoder, cache Cache, log logger.Logger) *CachedGeocoder {
	return &CachedGeocoder{
		next:   next,
		cache:  cache,
		logger: log,
	}
}

func (g *CachedGeocoder) Geocode(ctx context.Context, address string) (location.GeoPoint, error) {
	point, ok, err := g.cache.Get(ctx, address)
	if err != nil {
		g.logger.Warn("Geocode cache read failed", "address", address, "error", err)
	}
	if ok {
		return point, nil
	}

	point, err = g.next.Geocode(ctx, address)
	if err != nil {
		return location.GeoPoint{}, err
	}

	if err := g.cache.Put(ctx, address, point); err != nil {
		g.logger.Warn("Geocode cache write failed", "address", address, "error", err)
	}

	return point, nil
}
