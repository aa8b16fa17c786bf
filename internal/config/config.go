package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env       string
	Server    ServerConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	RateLimit RateLimitConfig
	Session   SessionConfig
	Location  LocationConfig
	Geocode   GeocodeConfig
	Ranking   RankingConfig
	LogLevel  string
}

type ServerConfig struct {
	Port           string
	Host           string
	AllowedOrigins []string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// PostgresConfig is optional. Contacts live in Redis when URL is empty.
type PostgresConfig struct {
	URL string
}

type RateLimitConfig struct {
	RequestsPerMinute     int
	PositionUpdatesPerMin int
	RankingsPerMin        int
	SessionsPerIPPerHour  int
}

type SessionConfig struct {
	TTL time.Duration
}

type LocationConfig struct {
	GeohashPrecision uint
	PositionTTL      time.Duration
}

type GeocodeConfig struct {
	Provider   string // "ors" or "static"
	BaseURL    string
	APIKey     string
	Country    string
	Timeout    time.Duration
	CacheTTL   time.Duration
	StaticFile string
}

type RankingConfig struct {
	GeocodeConcurrency int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Host:           getEnv("HOST", "0.0.0.0"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute:     getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MIN", 100),
			PositionUpdatesPerMin: getEnvAsInt("RATE_LIMIT_POSITION_PER_MIN", 12),
			RankingsPerMin:        getEnvAsInt("RATE_LIMIT_RANKINGS_PER_MIN", 6),
			SessionsPerIPPerHour:  getEnvAsInt("RATE_LIMIT_SESSIONS_PER_IP_PER_HOUR", 10),
		},
		Session: SessionConfig{
			TTL: time.Duration(getEnvAsInt("SESSION_TTL_MINUTES", 60)) * time.Minute,
		},
		Location: LocationConfig{
			GeohashPrecision: uint(getEnvAsInt("GEOHASH_PRECISION", 7)),
			PositionTTL:      time.Duration(getEnvAsInt("POSITION_TTL_MINUTES", 10)) * time.Minute,
		},
		Geocode: GeocodeConfig{
			Provider:   getEnv("GEOCODE_PROVIDER", "ors"),
			BaseURL:    getEnv("GEOCODE_BASE_URL", "https://api.openrouteservice.org"),
			APIKey:     getEnv("ORS_API_KEY", ""),
			Country:    getEnv("GEOCODE_COUNTRY", ""),
			Timeout:    time.Duration(getEnvAsInt("GEOCODE_TIMEOUT_SECONDS", 10)) * time.Second,
			CacheTTL:   time.Duration(getEnvAsInt("GEOCODE_CACHE_TTL_HOURS", 24*7)) * time.Hour,
			StaticFile: getEnv("GEOCODE_STATIC_FILE", ""),
		},
		Ranking: RankingConfig{
			GeocodeConcurrency: getEnvAsInt("GEOCODE_CONCURRENCY", 4),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Geocode.Provider != "ors" && c.Geocode.Provider != "static" {
		return fmt.Errorf("unknown GEOCODE_PROVIDER %q", c.Geocode.Provider)
	}
	if c.Geocode.Provider == "ors" && c.Geocode.APIKey == "" {
		return fmt.Errorf("ORS_API_KEY is required when GEOCODE_PROVIDER=ors")
	}
	if c.Ranking.GeocodeConcurrency < 1 {
		return fmt.Errorf("GEOCODE_CONCURRENCY must be at least 1, got %d", c.Ranking.GeocodeConcurrency)
	}
	if c.Location.GeohashPrecision < 1 || c.Location.GeohashPrecision > 12 {
		return fmt.Errorf("GEOHASH_PRECISION must be between 1 and 12, got %d", c.Location.GeohashPrecision)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
