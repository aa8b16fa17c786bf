package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/askwhyharsh/nearcontacts/internal/contacts"
	"github.com/askwhyharsh/nearcontacts/internal/location"
	"github.com/askwhyharsh/nearcontacts/internal/nearby"
	"github.com/askwhyharsh/nearcontacts/internal/ratelimit"
	"github.com/askwhyharsh/nearcontacts/internal/session"
	"github.com/askwhyharsh/nearcontacts/internal/websocket"
	apperrors "github.com/askwhyharsh/nearcontacts/pkg/errors"
	"github.com/askwhyharsh/nearcontacts/pkg/logger"
	"github.com/askwhyharsh/nearcontacts/pkg/validator"
)

const pushTimeout = 30 * time.Second

type Ranker interface {
	Run(ctx context.Context, sessionID string) (*nearby.Result, error)
}

// Publisher pushes messages to the WebSocket clients of a session.
type Publisher interface {
	Publish(sessionID string, msg *websocket.Message)
	ClientCount(sessionID string) int
}

type Handler struct {
	sessionService session.SessionService
	positions      location.PositionStore
	contactStore   contacts.Store
	ranker         Ranker
	publisher      Publisher
	rateLimiter    ratelimit.RateLimiter
	validator      validator.Validator
	logger         logger.Logger
}

type SessionResponse struct {
	SessionID   string              `json:"session_id"`
	Permissions session.Permissions `json:"permissions"`
	CreatedAt   string              `json:"created_at"`
}

type ContactPayload struct {
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	Addresses []contacts.Address `json:"addresses"`
}

func NewHandler(
	sessionService session.SessionService,
	positions location.PositionStore,
	contactStore contacts.Store,
	ranker Ranker,
	publisher Publisher,
	rateLimiter ratelimit.RateLimiter,
	validator validator.Validator,
	log logger.Logger,
) *Handler {
	return &Handler{
		sessionService: sessionService,
		positions:      positions,
		contactStore:   contactStore,
		ranker:         ranker,
		publisher:      publisher,
		rateLimiter:    rateLimiter,
		validator:      validator,
		logger:         log,
	}
}

// POST /api/session/create
func (h *Handler) CreateSession(c *gin.Context) {
	ip := c.ClientIP()

	allowed, err := h.rateLimiter.AllowSessionCreation(c.Request.Context(), ip)
	if h.limited(c, allowed, err) {
		return
	}

	sess, err := h.sessionService.Create(c.Request.Context(), ip)
	if err != nil {
		h.logger.Error("Failed to create session", "ip", ip, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("Failed to create session", "INTERNAL_ERROR"))
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse(SessionResponse{
		SessionID:   sess.ID,
		Permissions: sess.Permissions,
		CreatedAt:   sess.CreatedAt.Format(time.RFC3339),
	}))
}

// PUT /api/session/permissions
func (h *Handler) UpdatePermission(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		Scope     string `json:"scope" binding:"required"`
		Granted   *bool  `json:"granted" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("Invalid request", "INVALID_REQUEST"))
		return
	}

	if err := h.validator.ValidatePermissionScope(req.Scope); err != nil {
		respondError(c, err)
		return
	}

	sess, err := h.sessionService.SetPermission(c.Request.Context(), req.SessionID, req.Scope, *req.Granted)
	if err != nil {
		respondError(c, err)
		return
	}

	h.pushRanking(req.SessionID)

	c.JSON(http.StatusOK, SuccessResponse(gin.H{
		"session_id":  sess.ID,
		"permissions": sess.Permissions,
	}))
}

// POST /api/location/update
func (h *Handler) UpdateLocation(c *gin.Context) {
	var req struct {
		SessionID string   `json:"session_id" binding:"required"`
		Latitude  *float64 `json:"latitude" binding:"required"`
		Longitude *float64 `json:"longitude" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("Invalid request", "INVALID_REQUEST"))
		return
	}

	point, err := location.NewGeoPoint(*req.Latitude, *req.Longitude)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.sessionService.UpdateLastSeen(ctx, req.SessionID); err != nil {
		respondError(c, err)
		return
	}

	allowed, err := h.rateLimiter.AllowPositionUpdate(ctx, req.SessionID)
	if h.limited(c, allowed, err) {
		return
	}

	pos, err := h.positions.UpdatePosition(ctx, req.SessionID, point)
	if err != nil {
		h.logger.Error("Failed to store position", "session_id", req.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("Failed to update location", "INTERNAL_ERROR"))
		return
	}

	h.pushRanking(req.SessionID)

	c.JSON(http.StatusOK, SuccessResponse(gin.H{
		"message": "Location updated successfully",
		"geohash": pos.Geohash,
	}))
}

// PUT /api/contacts
func (h *Handler) SyncContacts(c *gin.Context) {
	var req struct {
		SessionID string           `json:"session_id" binding:"required"`
		Contacts  []ContactPayload `json:"contacts"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("Invalid request", "INVALID_REQUEST"))
		return
	}

	if err := h.validator.ValidateContactBatch(len(req.Contacts)); err != nil {
		respondError(c, err)
		return
	}

	records := make([]contacts.Record, 0, len(req.Contacts))
	for _, p := range req.Contacts {
		formatted := make([]string, len(p.Addresses))
		for i, a := range p.Addresses {
			formatted[i] = a.FormattedAddress
		}
		if err := h.validator.ValidateContactFields(p.FirstName, p.LastName, formatted); err != nil {
			respondError(c, err)
			return
		}
		records = append(records, contacts.Record{
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Addresses: p.Addresses,
		})
	}

	ctx := c.Request.Context()
	if err := h.sessionService.UpdateLastSeen(ctx, req.SessionID); err != nil {
		respondError(c, err)
		return
	}

	records = contacts.AssignIDs(records)
	if err := h.contactStore.Replace(ctx, req.SessionID, records); err != nil {
		h.logger.Error("Failed to store contacts", "session_id", req.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("Failed to store contacts", "INTERNAL_ERROR"))
		return
	}

	h.pushRanking(req.SessionID)

	c.JSON(http.StatusOK, SuccessResponse(gin.H{
		"count":          len(records),
		"with_addresses": len(contacts.WithAddresses(records)),
	}))
}

// GET /api/contacts/nearby
func (h *Handler) GetNearbyContacts(c *gin.Context) {
	sessionID, ok := requestSessionID(c)
	if !ok {
		return
	}

	// Unknown sessions must not get rate limit keys
	ctx := c.Request.Context()
	if err := h.sessionService.UpdateLastSeen(ctx, sessionID); err != nil {
		respondError(c, err)
		return
	}

	allowed, err := h.rateLimiter.AllowRanking(ctx, sessionID)
	if h.limited(c, allowed, err) {
		return
	}

	result, err := h.ranker.Run(ctx, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse(result))
}

// DELETE /api/session
func (h *Handler) EndSession(c *gin.Context) {
	sessionID, ok := requestSessionID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.sessionService.Get(ctx, sessionID); err != nil {
		respondError(c, err)
		return
	}

	if err := h.sessionService.Delete(ctx, sessionID); err != nil {
		h.logger.Error("Failed to delete session", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("Failed to end session", "INTERNAL_ERROR"))
		return
	}

	// The session is gone, so leftovers only expire or get swept later
	if err := h.positions.DeletePosition(ctx, sessionID); err != nil {
		h.logger.Warn("Failed to delete position", "session_id", sessionID, "error", err)
	}
	if err := h.contactStore.Delete(ctx, sessionID); err != nil {
		h.logger.Warn("Failed to delete contacts", "session_id", sessionID, "error", err)
	}
	if err := h.rateLimiter.ResetLimits(ctx, sessionID); err != nil {
		h.logger.Warn("Failed to reset rate limits", "session_id", sessionID, "error", err)
	}

	if h.publisher != nil && h.publisher.ClientCount(sessionID) > 0 {
		h.publisher.Publish(sessionID, websocket.NewErrorMessage("session ended", "SESSION_ENDED"))
	}

	c.JSON(http.StatusOK, SuccessResponse(gin.H{
		"session_id": sessionID,
		"deleted":    true,
	}))
}

// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   c.GetTime(requestTimeKey),
	})
}

// limited writes the response and reports true when the request must stop.
func (h *Handler) limited(c *gin.Context, allowed bool, err error) bool {
	if err != nil {
		h.logger.Error("Failed to check rate limit", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("Failed to check rate limit", "INTERNAL_ERROR"))
		return true
	}
	if !allowed {
		respondError(c, apperrors.ErrRateLimitExceeded)
		return true
	}
	return false
}

func requestSessionID(c *gin.Context) (string, bool) {
	sessionID := c.GetString(ratelimit.SessionIDKey)
	if sessionID == "" {
		sessionID = c.Query("session_id")
	}
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse("session_id required", "INVALID_REQUEST"))
		return "", false
	}
	return sessionID, true
}

// pushRanking reranks in the background when the session has a live socket.
func (h *Handler) pushRanking(sessionID string) {
	if h.publisher == nil || h.publisher.ClientCount(sessionID) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()

		result, err := h.ranker.Run(ctx, sessionID)
		if err != nil {
			h.logger.Warn("Failed to push ranking", "session_id", sessionID, "error", err)
			return
		}
		h.publisher.Publish(sessionID, websocket.NewRankedMessage(result))
	}()
}
