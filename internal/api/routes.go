package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/askwhyharsh/nearcontacts/internal/ratelimit"
)

const requestTimeKey = "request_time"

type WebSocketHandler interface {
	HandleWebSocket(c *gin.Context)
}

func SetupRoutes(r *gin.Engine, handler *Handler, wsHandler WebSocketHandler, rlMiddleware *ratelimit.Middleware, allowedOrigins []string) {
	r.Use(CORSMiddleware(allowedOrigins))
	r.Use(RequestTimeMiddleware())

	// Health check (no rate limit)
	r.GET("/api/health", handler.Health)

	api := r.Group("/api", rlMiddleware.IPRateLimit())
	{
		session := api.Group("/session")
		{
			session.POST("/create", handler.CreateSession)
			session.PUT("/permissions", handler.UpdatePermission)
		}
		api.DELETE("/session", rlMiddleware.SessionRateLimit(), handler.EndSession)

		api.POST("/location/update", handler.UpdateLocation)

		contactRoutes := api.Group("/contacts")
		{
			contactRoutes.PUT("", handler.SyncContacts)
			contactRoutes.GET("/nearby", rlMiddleware.SessionRateLimit(), handler.GetNearbyContacts)
		}
	}

	r.GET("/ws", rlMiddleware.IPRateLimit(), wsHandler.HandleWebSocket)
}

func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Session-ID"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	if len(allowedOrigins) == 0 || contains(allowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}

	return cors.New(cfg)
}

func RequestTimeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestTimeKey, time.Now())
		c.Next()
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
