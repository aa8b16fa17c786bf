package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askwhyharsh/nearcontacts/internal/config"
	"github.com/askwhyharsh/nearcontacts/internal/storage"
)

func newTestLimiter(t *testing.T, cfg config.RateLimitConfig) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewLimiter(storage.WrapRedisClient(client), cfg), mr
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l, _ := newTestLimiter(t, config.RateLimitConfig{RankingsPerMin: 3})
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		allowed, err := l.AllowRanking(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
	}

	allowed, err := l.AllowRanking(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, allowed)

	// other sessions have their own window
	allowed, err = l.AllowRanking(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, allowed)

	now = now.Add(61 * time.Second)
	allowed, err = l.AllowRanking(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiter_PositionAndRankingAreSeparate(t *testing.T) {
	l, _ := newTestLimiter(t, config.RateLimitConfig{RankingsPerMin: 1, PositionUpdatesPerMin: 1})
	ctx := context.Background()

	allowed, err := l.AllowRanking(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = l.AllowPositionUpdate(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = l.AllowPositionUpdate(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestLimiter_SessionCreation(t *testing.T) {
	l, mr := newTestLimiter(t, config.RateLimitConfig{SessionsPerIPPerHour: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := l.AllowSessionCreation(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := l.AllowSessionCreation(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed)

	mr.FastForward(time.Hour + time.Second)

	allowed, err = l.AllowSessionCreation(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiter_ResetLimits(t *testing.T) {
	l, _ := newTestLimiter(t, config.RateLimitConfig{RankingsPerMin: 1})
	ctx := context.Background()

	allowed, err := l.AllowRanking(ctx, "s1")
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, l.ResetLimits(ctx, "s1"))

	allowed, err = l.AllowRanking(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMiddleware_IPRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(t, config.RateLimitConfig{RequestsPerMinute: 1})

	r := gin.New()
	r.Use(NewMiddleware(l).IPRateLimit())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_IP")
}

func TestMiddleware_SessionRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(t, config.RateLimitConfig{})

	r := gin.New()
	r.GET("/me", NewMiddleware(l).SessionRateLimit(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SessionIDKey))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Session-ID", "from-header")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "from-header", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?session_id=from-query", nil))
	assert.Equal(t, "from-query", w.Body.String())
}
