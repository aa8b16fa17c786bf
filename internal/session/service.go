package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/askwhyharsh/nearcontacts/internal/storage"
	apperrors "github.com/askwhyharsh/nearcontacts/pkg/errors"
	"github.com/askwhyharsh/nearcontacts/pkg/validator"
)

type SessionService interface {
	Create(ctx context.Context, ipAddress string) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	SetPermission(ctx context.Context, sessionID, scope string, granted bool) (*Session, error)
	UpdateLastSeen(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// Toucher is per-session data that must live as long as the session does.
type Toucher interface {
	Touch(ctx context.Context, sessionID string) error
}

// Hash fields of session:<id>. Each update writes only its own fields so
// concurrent grants cannot overwrite each other.
const (
	fieldID          = "id"
	fieldIP          = "ip_address"
	fieldCreatedAt   = "created_at"
	fieldLastSeen    = "last_seen"
	fieldPermLoc     = "perm_location"
	fieldPermContact = "perm_contacts"
)

type Service struct {
	redis  storage.RedisClient
	ttl    time.Duration
	linked []Toucher
}

// Permissions mirrors what the user answered in the device permission dialogs.
type Permissions struct {
	Location bool `json:"location"`
	Contacts bool `json:"contacts"`
}

type Session struct {
	ID          string      `json:"id"`
	Permissions Permissions `json:"permissions"`
	CreatedAt   time.Time   `json:"created_at"`
	LastSeen    time.Time   `json:"last_seen"`
	IPAddress   string      `json:"ip_address"`
}

// NewService stores sessions with ttl. Every touch of a session also
// touches linked, so their data expires together with the session.
func NewService(redisClient storage.RedisClient, ttl time.Duration, linked ...Toucher) *Service {
	return &Service{
		redis:  redisClient,
		ttl:    ttl,
		linked: linked,
	}
}

// TTL is how long a session lives after its last touch.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

func (s *Service) Create(ctx context.Context, ipAddress string) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		LastSeen:  now,
		IPAddress: ipAddress,
	}

	err := s.redis.HSetWithTTL(ctx, s.sessionKey(session.ID), s.ttl,
		fieldID, session.ID,
		fieldIP, session.IPAddress,
		fieldCreatedAt, formatTime(session.CreatedAt),
		fieldLastSeen, formatTime(session.LastSeen),
		fieldPermLoc, formatBool(false),
		fieldPermContact, formatBool(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, apperrors.ErrInvalidSessionID
	}

	fields, err := s.redis.HGetAll(ctx, s.sessionKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	// A hash without an id is a write that raced with expiry
	if fields[fieldID] == "" {
		return nil, apperrors.ErrSessionNotFound
	}

	return decodeSession(fields)
}

func (s *Service) SetPermission(ctx context.Context, sessionID, scope string, granted bool) (*Session, error) {
	var field string
	switch scope {
	case validator.ScopeLocation:
		field = fieldPermLoc
	case validator.ScopeContacts:
		field = fieldPermContact
	default:
		return nil, apperrors.ErrInvalidPermissionScope
	}

	if err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}

	err := s.redis.HSetWithTTL(ctx, s.sessionKey(sessionID), s.ttl,
		field, formatBool(granted),
		fieldLastSeen, formatTime(time.Now().UTC()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set permission: %w", err)
	}

	if err := s.touchLinked(ctx, sessionID); err != nil {
		return nil, err
	}

	return s.Get(ctx, sessionID)
}

func (s *Service) UpdateLastSeen(ctx context.Context, sessionID string) error {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return err
	}

	err := s.redis.HSetWithTTL(ctx, s.sessionKey(sessionID), s.ttl,
		fieldLastSeen, formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	return s.touchLinked(ctx, sessionID)
}

func (s *Service) Delete(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx, s.sessionKey(sessionID))
}

func (s *Service) Exists(ctx context.Context, sessionID string) (bool, error) {
	count, err := s.redis.Exists(ctx, s.sessionKey(sessionID))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) requireSession(ctx context.Context, sessionID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return apperrors.ErrInvalidSessionID
	}

	exists, err := s.Exists(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if !exists {
		return apperrors.ErrSessionNotFound
	}
	return nil
}

func (s *Service) touchLinked(ctx context.Context, sessionID string) error {
	for _, l := range s.linked {
		if err := l.Touch(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to refresh session data: %w", err)
		}
	}
	return nil
}

func (s *Service) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func decodeSession(fields map[string]string) (*Session, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("failed to decode session created_at: %w", err)
	}
	lastSeen, err := time.Parse(time.RFC3339Nano, fields[fieldLastSeen])
	if err != nil {
		return nil, fmt.Errorf("failed to decode session last_seen: %w", err)
	}

	return &Session{
		ID: fields[fieldID],
		Permissions: Permissions{
			Location: fields[fieldPermLoc] == "1",
			Contacts: fields[fieldPermContact] == "1",
		},
		CreatedAt: createdAt,
		LastSeen:  lastSeen,
		IPAddress: fields[fieldIP],
	}, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
