// Package nearby runs one ranking pass for a session: it checks the
// permissions the device granted, reads the observer position and synced
// contacts, geocodes every contact address and ranks them by distance.
package nearby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/askwhyharsh/nearcontacts/internal/contacts"
	"github.com/askwhyharsh/nearcontacts/internal/geocode"
	"github.com/askwhyharsh/nearcontacts/internal/location"
	"github.com/askwhyharsh/nearcontacts/internal/session"
	apperrors "github.com/askwhyharsh/nearcontacts/pkg/errors"
	"github.com/askwhyharsh/nearcontacts/pkg/logger"
)

type SessionGetter interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
}

type PositionGetter interface {
	GetPosition(ctx context.Context, sessionID string) (*location.Position, error)
}

type ContactLister interface {
	List(ctx context.Context, sessionID string) ([]contacts.Record, error)
}

// Result is what the map and the list overlay are drawn from.
type Result struct {
	Observer     location.GeoPoint
	ObserverCell string
	Contacts     []location.Contact
	Skipped      int
	RankedAt     time.Time
}

type observerJSON struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Geohash string  `json:"geohash"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Observer observerJSON       `json:"observer"`
		Contacts []location.Contact `json:"contacts"`
		Count    int                `json:"count"`
		Skipped  int                `json:"skipped"`
		RankedAt time.Time          `json:"ranked_at"`
	}{
		Observer: observerJSON{Lat: r.Observer.Lat, Lon: r.Observer.Lon, Geohash: r.ObserverCell},
		Contacts: r.Contacts,
		Count:    len(r.Contacts),
		Skipped:  r.Skipped,
		RankedAt: r.RankedAt,
	})
}

type Pipeline struct {
	sessions    SessionGetter
	positions   PositionGetter
	contacts    ContactLister
	geocoder    geocode.Geocoder
	logger      logger.Logger
	concurrency int
}

func NewPipeline(
	sessions SessionGetter,
	positions PositionGetter,
	contactLister ContactLister,
	geocoder geocode.Geocoder,
	log logger.Logger,
	concurrency int,
) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		sessions:    sessions,
		positions:   positions,
		contacts:    contactLister,
		geocoder:    geocoder,
		logger:      log,
		concurrency: concurrency,
	}
}

// Run ranks the session's contacts around its last reported position.
// Without the contacts permission the result carries the observer only.
func (p *Pipeline) Run(ctx context.Context, sessionID string) (*Result, error) {
	sess, err := p.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Permissions.Location {
		return nil, apperrors.ErrLocationPermissionDenied
	}

	position, err := p.positions.GetPosition(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Observer:     position.Point(),
		ObserverCell: position.Geohash,
		Contacts:     []location.Contact{},
		RankedAt:     time.Now(),
	}

	if !sess.Permissions.Contacts {
		p.logger.Debug("Contacts permission not granted, ranking skipped", "session_id", sessionID)
		return result, nil
	}

	records, err := p.contacts.List(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	withAddress := contacts.WithAddresses(records)
	candidates, skipped, err := p.resolve(ctx, withAddress)
	if err != nil {
		return nil, err
	}

	result.Contacts = location.Rank(result.Observer, candidates)
	result.Skipped = (len(records) - len(withAddress)) + skipped

	p.logger.Info("Ranked contacts",
		"session_id", sessionID,
		"contacts", len(records),
		"ranked", len(result.Contacts),
		"skipped", result.Skipped,
	)

	return result, nil
}

// resolve geocodes every record concurrently. Each result lands in its input
// slot, so candidate order follows the synced order and ties rank stably.
func (p *Pipeline) resolve(ctx context.Context, records []contacts.Record) ([]location.Candidate, int, error) {
	resolved := make([]*location.Candidate, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, r := range records {
		address, _ := r.FirstAddress()
		g.Go(func() error {
			point, err := p.geocoder.Geocode(gctx, address)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if errors.Is(err, apperrors.ErrNoGeocodeResult) {
					p.logger.Debug("Address not found", "contact_id", r.ID, "address", address)
				} else {
					p.logger.Warn("Geocoding failed", "contact_id", r.ID, "address", address, "error", err)
				}
				return nil
			}

			resolved[i] = &location.Candidate{
				ID:          r.ID,
				DisplayName: r.DisplayName(),
				Address:     address,
				Location:    point,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("geocode contacts: %w", err)
	}

	candidates := make([]location.Candidate, 0, len(records))
	for _, c := range resolved {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}

	return candidates, len(records) - len(candidates), nil
}
