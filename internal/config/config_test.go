package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEOCODE_PROVIDER", "static")
	t.Setenv("ENV", "")
	t.Setenv("GEOCODE_CONCURRENCY", "")
	t.Setenv("GEOHASH_PRECISION", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 4, cfg.Ranking.GeocodeConcurrency)
	assert.Equal(t, uint(7), cfg.Location.GeohashPrecision)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("GEOCODE_PROVIDER", "ors")
	t.Setenv("ORS_API_KEY", "secret")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("GEOCODE_CONCURRENCY", "8")
	t.Setenv("POSITION_TTL_MINUTES", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("RATE_LIMIT_RANKINGS_PER_MIN", "not-a-number")
	t.Setenv("GEOHASH_PRECISION", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "secret", cfg.Geocode.APIKey)
	assert.Equal(t, "cache:6380", cfg.RedisAddr())
	assert.Equal(t, 8, cfg.Ranking.GeocodeConcurrency)
	assert.Equal(t, 3*time.Minute, cfg.Location.PositionTTL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 6, cfg.RateLimit.RankingsPerMin)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown provider", map[string]string{"GEOCODE_PROVIDER": "bing"}},
		{"ors without key", map[string]string{"GEOCODE_PROVIDER": "ors", "ORS_API_KEY": ""}},
		{"zero concurrency", map[string]string{"GEOCODE_PROVIDER": "static", "GEOCODE_CONCURRENCY": "0"}},
		{"precision too high", map[string]string{"GEOCODE_PROVIDER": "static", "GEOHASH_PRECISION": "13"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEOCODE_CONCURRENCY", "")
			t.Setenv("GEOHASH_PRECISION", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
