package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/askwhyharsh/nearcontacts/internal/nearby"
	apperrors "github.com/askwhyharsh/nearcontacts/pkg/errors"
	"github.com/askwhyharsh/nearcontacts/pkg/logger"
)

const rankTimeout = 30 * time.Second

type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) error
}

type Ranker interface {
	Run(ctx context.Context, sessionID string) (*nearby.Result, error)
}

type Handler struct {
	hub      *Hub
	sessions SessionValidator
	ranker   Ranker
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewHandler builds the /ws handler. An empty allowedOrigins or a "*" entry
// accepts every origin.
func NewHandler(hub *Hub, sessions SessionValidator, ranker Ranker, allowedOrigins []string, log logger.Logger) *Handler {
	return &Handler{
		hub:      hub,
		sessions: sessions,
		ranker:   ranker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: log,
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   gin.H{"message": "session_id required", "code": "INVALID_REQUEST"},
		})
		return
	}

	if err := h.sessions.ValidateSession(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   gin.H{"message": "invalid session", "code": "SESSION_NOT_FOUND"},
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "session_id", sessionID, "error", err)
		return
	}

	client := NewClient(h.hub, conn, sessionID, h.refresh, h.logger)
	h.hub.register(client)

	go client.WritePump()

	// First frame is the current ranking so the map can draw immediately
	h.refresh(client)

	client.ReadPump()
}

func (h *Handler) refresh(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), rankTimeout)
	defer cancel()

	result, err := h.ranker.Run(ctx, client.sessionID)
	if err != nil {
		appErr := apperrors.Classify(err)
		client.trySend(NewErrorMessage(appErr.Message, appErr.Code))
		return
	}

	client.trySend(NewRankedMessage(result))
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Native mobile clients do not send an Origin header
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
