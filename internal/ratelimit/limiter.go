package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/askwhyharsh/nearcontacts/internal/config"
	"github.com/askwhyharsh/nearcontacts/internal/storage"
)

// RateLimiter defines the contract for enforcing and managing rate limits.
type RateLimiter interface {
	// AllowPositionUpdate checks if a session can report a new position.
	AllowPositionUpdate(ctx context.Context, sessionID string) (bool, error)

	// AllowRanking checks if a session can run a ranking pass. Each pass
	// may geocode every contact, so it is limited separately.
	AllowRanking(ctx context.Context, sessionID string) (bool, error)

	// AllowSessionCreation checks if an IP can create a new session.
	AllowSessionCreation(ctx context.Context, ip string) (bool, error)

	// AllowIPRequest checks if an IP can make a request.
	AllowIPRequest(ctx context.Context, ip string) (bool, error)

	// ResetLimits clears all rate limit counters for a session.
	ResetLimits(ctx context.Context, sessionID string) error
}

type Limiter struct {
	redis  storage.RedisClient
	config config.RateLimitConfig
	now    func() time.Time
}

func NewLimiter(redisClient storage.RedisClient, config config.RateLimitConfig) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: config,
		now:    time.Now,
	}
}

func (l *Limiter) AllowPositionUpdate(ctx context.Context, sessionID string) (bool, error) {
	return l.checkSlidingWindow(ctx, positionKey(sessionID), l.config.PositionUpdatesPerMin, time.Minute)
}

func (l *Limiter) AllowRanking(ctx context.Context, sessionID string) (bool, error) {
	return l.checkSlidingWindow(ctx, rankingKey(sessionID), l.config.RankingsPerMin, time.Minute)
}

// AllowSessionCreation uses a fixed hourly counter per IP.
func (l *Limiter) AllowSessionCreation(ctx context.Context, ip string) (bool, error) {
	key := fmt.Sprintf("ratelimit:ip:%s:sessions", ip)

	count, err := l.redis.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check session creation rate limit: %w", err)
	}

	// Window starts at the first increment
	if count == 1 {
		if err := l.redis.Expire(ctx, key, time.Hour); err != nil {
			return false, fmt.Errorf("failed to set session creation window: %w", err)
		}
	}

	return count <= int64(l.config.SessionsPerIPPerHour), nil
}

func (l *Limiter) AllowIPRequest(ctx context.Context, ip string) (bool, error) {
	key := fmt.Sprintf("ratelimit:ip:%s:requests", ip)
	return l.checkSlidingWindow(ctx, key, l.config.RequestsPerMinute, time.Minute)
}

// checkSlidingWindow implements a sliding window rate limiter using sorted sets
func (l *Limiter) checkSlidingWindow(ctx context.Context, key string, maxCount int, window time.Duration) (bool, error) {
	now := l.now()
	windowStart := now.Add(-window).UnixMilli()

	// Remove old entries outside the window
	if err := l.redis.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart)); err != nil {
		return false, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := l.redis.ZCard(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to count entries: %w", err)
	}

	if count >= int64(maxCount) {
		return false, nil
	}

	// Members must be unique or requests in the same millisecond collapse
	if err := l.redis.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()),
	}); err != nil {
		return false, fmt.Errorf("failed to add entry: %w", err)
	}

	if err := l.redis.Expire(ctx, key, window); err != nil {
		return false, fmt.Errorf("failed to set window expiry: %w", err)
	}

	return true, nil
}

// ResetLimits clears the per-session counters of an ended session.
func (l *Limiter) ResetLimits(ctx context.Context, sessionID string) error {
	return l.redis.Del(ctx, positionKey(sessionID), rankingKey(sessionID))
}

func positionKey(sessionID string) string {
	return fmt.Sprintf("ratelimit:position:%s", sessionID)
}

func rankingKey(sessionID string) string {
	return fmt.Sprintf("ratelimit:ranking:%s", sessionID)
}
