package session

import (
	"context"
	"fmt"
	"time"

	"github.com/askwhyharsh/nearcontacts/internal/storage"
	"github.com/askwhyharsh/nearcontacts/pkg/logger"
)

// StaleSweeper removes session data kept outside Redis, where no TTL applies.
type StaleSweeper interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// Manager reports on live sessions in the background and sweeps data that
// outlived its session. Session expiry itself is left to the Redis TTL.
type Manager struct {
	service  *Service
	redis    storage.RedisClient
	logger   logger.Logger
	interval time.Duration
	sweeper  StaleSweeper
}

func NewManager(service *Service, redisClient storage.RedisClient, log logger.Logger, interval time.Duration) *Manager {
	return &Manager{
		service:  service,
		redis:    redisClient,
		logger:   log,
		interval: interval,
	}
}

// WithSweeper makes every tick delete data untouched for longer than the
// session TTL.
func (m *Manager) WithSweeper(sweeper StaleSweeper) *Manager {
	m.sweeper = sweeper
	return m
}

// Start blocks until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("Session Manager started", "interval", m.interval)

	for {
		select {
		case <-ticker.C:
			m.tick(ctx)
		case <-ctx.Done():
			m.logger.Info("Session Manager stopped")
			return
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	count, err := m.CountActive(ctx)
	if err != nil {
		m.logger.Error("Failed to count active sessions", "error", err)
	} else {
		m.logger.Debug("Active sessions", "count", count)
	}

	removed, err := m.Sweep(ctx)
	if err != nil {
		m.logger.Error("Failed to sweep stale session data", "error", err)
		return
	}
	if removed > 0 {
		m.logger.Info("Swept stale session data", "rows", removed)
	}
}

// CountActive counts the session keys that have not expired yet.
func (m *Manager) CountActive(ctx context.Context) (int, error) {
	count := 0
	iter := m.redis.Scan(ctx, 0, "session:*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count, iter.Err()
}

// Sweep deletes data whose session has certainly expired. It is a no-op
// without a sweeper.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	if m.sweeper == nil {
		return 0, nil
	}
	return m.sweeper.DeleteStale(ctx, time.Now().Add(-m.service.TTL()))
}

// ValidateSession checks that a session exists and refreshes its TTL.
func (m *Manager) ValidateSession(ctx context.Context, sessionID string) error {
	if err := m.service.UpdateLastSeen(ctx, sessionID); err != nil {
		return fmt.Errorf("validate session %s: %w", sessionID, err)
	}
	return nil
}
