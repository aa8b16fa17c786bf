package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/askwhyharsh/nearcontacts/internal/storage"
	apperrors "github.com/askwhyharsh/nearcontacts/pkg/errors"
)

// PositionStore holds the observer position reported by each device.
type PositionStore interface {
	UpdatePosition(ctx context.Context, sessionID string, point GeoPoint) (*Position, error)
	GetPosition(ctx context.Context, sessionID string) (*Position, error)
	DeletePosition(ctx context.Context, sessionID string) error
}

type Service struct {
	redis         storage.RedisClient
	cellPrecision uint
	ttl           time.Duration
}

type Position struct {
	SessionID string    `json:"session_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Geohash   string    `json:"geohash"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Point returns the stored coordinates.
func (p *Position) Point() GeoPoint {
	return GeoPoint{Lat: p.Lat, Lon: p.Lon}
}

func NewService(redisClient storage.RedisClient, cellPrecision uint, ttl time.Duration) *Service {
	return &Service{
		redis:         redisClient,
		cellPrecision: cellPrecision,
		ttl:           ttl,
	}
}

func (s *Service) UpdatePosition(ctx context.Context, sessionID string, point GeoPoint) (*Position, error) {
	position := &Position{
		SessionID: sessionID,
		Lat:       point.Lat,
		Lon:       point.Lon,
		Geohash:   Cell(point, s.cellPrecision),
		UpdatedAt: time.Now(),
	}

	data, err := json.Marshal(position)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal position: %w", err)
	}

	// Expires unless the device keeps reporting
	if err := s.redis.Set(ctx, s.positionKey(sessionID), data, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store position: %w", err)
	}

	return position, nil
}

func (s *Service) GetPosition(ctx context.Context, sessionID string) (*Position, error) {
	data, err := s.redis.Get(ctx, s.positionKey(sessionID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrPositionNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	var position Position
	if err := json.Unmarshal([]byte(data), &position); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position: %w", err)
	}

	return &position, nil
}

func (s *Service) DeletePosition(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx, s.positionKey(sessionID))
}

func (s *Service) positionKey(sessionID string) string {
	return fmt.Sprintf("position:%s", sessionID)
}
