package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/askwhyharsh/nearcontacts/internal/api"
	"github.com/askwhyharsh/nearcontacts/internal/config"
	"github.com/askwhyharsh/nearcontacts/internal/contacts"
	"github.com/askwhyharsh/nearcontacts/internal/geocode"
	"github.com/askwhyharsh/nearcontacts/internal/location"
	"github.com/askwhyharsh/nearcontacts/internal/nearby"
	"github.com/askwhyharsh/nearcontacts/internal/ratelimit"
	"github.com/askwhyharsh/nearcontacts/internal/session"
	"github.com/askwhyharsh/nearcontacts/internal/storage"
	"github.com/askwhyharsh/nearcontacts/internal/websocket"
	"github.com/askwhyharsh/nearcontacts/pkg/logger"
	"github.com/askwhyharsh/nearcontacts/pkg/validator"
)

const sessionSweepInterval = 5 * time.Minute

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info("Starting nearcontacts server...")

	redisClient, err := storage.NewRedisClient(cfg)
	if err != nil {
		appLogger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", "address", cfg.RedisAddr())

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var contactStore contacts.Store = contacts.NewRedisStore(redisClient, cfg.Session.TTL)
	var pgStore *contacts.PostgresStore
	if cfg.Postgres.URL != "" {
		db, err := storage.NewPostgresDB(ctx, cfg.Postgres.URL)
		if err != nil {
			appLogger.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pgStore = contacts.NewPostgresStore(db)
		contactStore = pgStore
		appLogger.Info("Contacts stored in Postgres")
	}

	// Touching a session keeps its address book alive
	sessionService := session.NewService(redisClient, cfg.Session.TTL, contactStore)
	sessionManager := session.NewManager(sessionService, redisClient, appLogger, sessionSweepInterval)
	if pgStore != nil {
		sessionManager.WithSweeper(pgStore)
	}

	positionService := location.NewService(redisClient, cfg.Location.GeohashPrecision, cfg.Location.PositionTTL)

	geocoder, err := newGeocoder(cfg, redisClient, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize geocoder", "error", err)
		os.Exit(1)
	}

	pipeline := nearby.NewPipeline(
		sessionService,
		positionService,
		contactStore,
		geocoder,
		appLogger,
		cfg.Ranking.GeocodeConcurrency,
	)

	rateLimiter := ratelimit.NewLimiter(redisClient, cfg.RateLimit)
	rateLimitMiddleware := ratelimit.NewMiddleware(rateLimiter)

	hub := websocket.NewHub(appLogger)
	go hub.Run(ctx)

	wsHandler := websocket.NewHandler(hub, sessionManager, pipeline, cfg.Server.AllowedOrigins, appLogger)

	apiHandler := api.NewHandler(
		sessionService,
		positionService,
		contactStore,
		pipeline,
		hub,
		rateLimiter,
		validator.NewValidator(),
		appLogger,
	)

	// Start background services
	go sessionManager.Start(ctx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		appLogger.Info("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"ip", c.ClientIP(),
		)
	})

	api.SetupRoutes(router, apiHandler, wsHandler, rateLimitMiddleware, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Server starting", "address", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Stops the hub and the session manager
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server stopped")
}

func newGeocoder(cfg *config.Config, redisClient storage.RedisClient, log logger.Logger) (geocode.Geocoder, error) {
	var provider geocode.Geocoder

	switch cfg.Geocode.Provider {
	case "static":
		if cfg.Geocode.StaticFile == "" {
			provider = geocode.NewStaticGeocoder(nil)
			break
		}
		static, err := geocode.LoadStaticGeocoder(cfg.Geocode.StaticFile)
		if err != nil {
			return nil, err
		}
		provider = static
	default:
		ors, err := geocode.NewORSGeocoder(cfg.Geocode.BaseURL, cfg.Geocode.APIKey, cfg.Geocode.Country, cfg.Geocode.Timeout, log)
		if err != nil {
			return nil, err
		}
		provider = ors
	}

	cache := geocode.NewRedisCache(redisClient, cfg.Geocode.CacheTTL)
	return geocode.NewCachedGeocoder(provider, cache, log), nil
}
