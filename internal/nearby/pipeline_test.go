package nearby

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/askwhyharsh/nearcontacts/internal/contacts"
	"github.com/askwhyharsh/nearcontacts/internal/geocode"
	"github.com/askwhyharsh/nearcontacts/internal/location"
	"github.com/askwhyharsh/nearcontacts/internal/session"
	apperrors "github.com/askwhyharsh/nearcontacts/pkg/errors"
	"github.com/askwhyharsh/nearcontacts/pkg/logger"
)

type MockSessionGetter struct {
	mock.Mock
}

func (m *MockSessionGetter) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

type MockPositionGetter struct {
	mock.Mock
}

func (m *MockPositionGetter) GetPosition(ctx context.Context, sessionID string) (*location.Position, error) {
	args := m.Called(ctx, sessionID)
	p, _ := args.Get(0).(*location.Position)
	return p, args.Error(1)
}

type MockContactLister struct {
	mock.Mock
}

func (m *MockContactLister) List(ctx context.Context, sessionID string) ([]contacts.Record, error) {
	args := m.Called(ctx, sessionID)
	r, _ := args.Get(0).([]contacts.Record)
	return r, args.Error(1)
}

// trackingGeocoder records the highest number of calls in flight at once.
type trackingGeocoder struct {
	next     geocode.Geocoder
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (g *trackingGeocoder) Geocode(ctx context.Context, address string) (location.GeoPoint, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		seen := g.maxSeen.Load()
		if n <= seen || g.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(g.delay)
	return g.next.Geocode(ctx, address)
}

type errGeocoder struct{ err error }

func (g errGeocoder) Geocode(ctx context.Context, address string) (location.GeoPoint, error) {
	return location.GeoPoint{}, g.err
}

const sessionID = "7d5e6a44-1c1b-4a63-9a57-4c1d8b2f1e10"

var (
	nyc = location.GeoPoint{Lat: 40.7128, Lon: -74.0060}

	errStoreDown = errors.New("contact store down")

	addressBook = map[string]location.GeoPoint{
		"350 5th Ave, New York":    {Lat: 40.7484, Lon: -73.9857},
		"1 Brookings Dr, St Louis": {Lat: 38.6488, Lon: -90.3108},
		"Westminster, London":      {Lat: 51.4975, Lon: -0.1357},
		"Brooklyn Bridge, NY":      {Lat: 40.7061, Lon: -73.9969},
	}
)

func address(a string) []contacts.Address {
	return []contacts.Address{{Label: "home", FormattedAddress: a}}
}

func grantedSession(loc, cts bool) *session.Session {
	return &session.Session{
		ID:          sessionID,
		Permissions: session.Permissions{Location: loc, Contacts: cts},
	}
}

func observerPosition() *location.Position {
	return &location.Position{SessionID: sessionID, Lat: nyc.Lat, Lon: nyc.Lon, Geohash: location.Cell(nyc, 7)}
}

func TestPipeline_RanksContactsByDistance(t *testing.T) {
	sessions := new(MockSessionGetter)
	positions := new(MockPositionGetter)
	lister := new(MockContactLister)

	sessions.On("Get", mock.Anything, sessionID).Return(grantedSession(true, true), nil)
	positions.On("GetPosition", mock.Anything, sessionID).Return(observerPosition(), nil)
	lister.On("List", mock.Anything, sessionID).Return([]contacts.Record{
		{ID: "london", FirstName: "Ada", LastName: "Lovelace", Addresses: address("Westminster, London")},
		{ID: "nobody", FirstName: "No", LastName: "Address"},
		{ID: "stl", FirstName: "Grace", Addresses: address("1 Brookings Dr, St Louis")},
		{ID: "lost", FirstName: "Lost", Addresses: address("Nowhere Lane")},
		{ID: "esb", LastName: "Empire", Addresses: address("350 5th Ave, New York")},
		{ID: "bridge", Addresses: address("Brooklyn Bridge, NY")},
	}, nil)

	p := NewPipeline(sessions, positions, lister, geocode.NewStaticGeocoder(addressBook), logger.NewNop(), 3)

	result, err := p.Run(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, nyc, result.Observer)
	assert.Equal(t, location.Cell(nyc, 7), result.ObserverCell)
	assert.Equal(t, 2, result.Skipped)

	ids := make([]string, len(result.Contacts))
	for i, c := range result.Contacts {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"bridge", "esb", "stl", "london"}, ids)

	for i := 1; i < len(result.Contacts); i++ {
		assert.LessOrEqual(t, result.Contacts[i-1].DistanceKm(), result.Contacts[i].DistanceKm())
	}
	assert.Equal(t, "Ada Lovelace", result.Contacts[3].DisplayName)
	assert.Equal(t, "Westminster, London", result.Contacts[3].Address)
	assert.Equal(t, "", result.Contacts[0].DisplayName)

	sessions.AssertExpectations(t)
	positions.AssertExpectations(t)
	lister.AssertExpectations(t)
}

func TestPipeline_LocationPermissionDenied(t *testing.T) {
	sessions := new(MockSessionGetter)
	positions := new(MockPositionGetter)
	lister := new(MockContactLister)

	sessions.On("Get", mock.Anything, sessionID).Return(grantedSession(false, true), nil)

	p := NewPipeline(sessions, positions, lister, geocode.NewStaticGeocoder(nil), logger.NewNop(), 1)

	_, err := p.Run(context.Background(), sessionID)
	assert.ErrorIs(t, err, apperrors.ErrLocationPermissionDenied)

	positions.AssertNotCalled(t, "GetPosition", mock.Anything, mock.Anything)
	lister.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestPipeline_ContactsPermissionDeniedShowsObserverOnly(t *testing.T) {
	sessions := new(MockSessionGetter)
	positions := new(MockPositionGetter)
	lister := new(MockContactLister)

	sessions.On("Get", mock.Anything, sessionID).Return(grantedSession(true, false), nil)
	positions.On("GetPosition", mock.Anything, sessionID).Return(observerPosition(), nil)

	p := NewPipeline(sessions, positions, lister, geocode.NewStaticGeocoder(nil), logger.NewNop(), 1)

	result, err := p.Run(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, nyc, result.Observer)
	assert.NotNil(t, result.Contacts)
	assert.Empty(t, result.Contacts)

	lister.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestPipeline_PropagatesLookupErrors(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		sessions := new(MockSessionGetter)
		sessions.On("Get", mock.Anything, sessionID).Return(nil, apperrors.ErrSessionNotFound)

		p := NewPipeline(sessions, new(MockPositionGetter), new(MockContactLister), geocode.NewStaticGeocoder(nil), logger.NewNop(), 1)

		_, err := p.Run(context.Background(), sessionID)
		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("no position yet", func(t *testing.T) {
		sessions := new(MockSessionGetter)
		positions := new(MockPositionGetter)
		sessions.On("Get", mock.Anything, sessionID).Return(grantedSession(true, true), nil)
		positions.On("GetPosition", mock.Anything, sessionID).Return(nil, apperrors.ErrPositionNotFound)

		p := NewPipeline(sessions, positions, new(MockContactLister), geocode.NewStaticGeocoder(nil), logger.NewNop(), 1)

		_, err := p.Run(context.Background(), sessionID)
		assert.ErrorIs(t, err, apperrors.ErrPositionNotFound)
	})

	t.Run("contact store down", func(t *testing.T) {
		sessions := new(MockSessionGetter)
		positions := new(MockPositionGetter)
		lister := new(MockContactLister)
		sessions.On("Get", mock.Anything, sessionID).Return(grantedSession(true, true), nil)
		positions.On("GetPosition", mock.Anything, sessionID).Return(observerPosition(), nil)
		lister.On("List", mock.Anything, sessionID).Return(nil, errStoreDown)

		p := NewPipeline(sessions, positions, lister, geocode.NewStaticGeocoder(nil), logger.NewNop(), 1)

		_, err := p.Run(context.Background(), sessionID)
		assert.ErrorIs(t, err, errStoreDown)
	})
}

func TestPipeline_GeocodeFailuresAreSkipped(t *testing.T) {
	sessions := new(MockSessionGetter)
	positions := new(MockPositionGetter)
	lister := new(MockContactLister)

	sessions.On("Get", mock.Anything, sessionID).Return(grantedSession(true, true), nil)
	positions.On("GetPosition", mock.Anything, sessionID).Return(observerPosition(), nil)
	lister.On("List", mock.Anything, sessionID).Return([]contacts.Record{
		{ID: "1", Addresses: address("Westminster, London")},
		{ID: "2", Addresses: address("350 5th Ave, New York")},
	}, nil)

	p := NewPipeline(sessions, positions, lister, errGeocoder{err: errors.New("provider down")}, logger.NewNop(), 2)

	result, err := p.Run(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Empty(t, result.Contacts)
	assert.Equal(t, 2, result.Skipped)
}

func TestPipeline_ContextCancelled(t *testing.T) {
	sessions := new(MockSessionGetter)
	positions := new(MockPositionGetter)
	lister := new(MockContactLister)

	sessions.On("Get", mock.Anything, sessionID).Return(grantedSession(true, true), nil)
	positions.On("GetPosition", mock.Anything, sessionID).Return(observerPosition(), nil)
	lister.On("List", mock.Anything, sessionID).Return([]contacts.Record{
		{ID: "1", Addresses: address("Westminster, London")},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPipeline(sessions, positions, lister, geocode.NewStaticGeocoder(addressBook), logger.NewNop(), 1)

	_, err := p.Run(ctx, sessionID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_BoundsGeocodeConcurrency(t *testing.T) {
	sessions := new(MockSessionGetter)
	positions := new(MockPositionGetter)
	lister := new(MockContactLister)

	records := make([]contacts.Record, 0, 12)
	for i := 0; i < 12; i++ {
		records = append(records, contacts.Record{ID: string(rune('a' + i)), Addresses: address("Brooklyn Bridge, NY")})
	}

	sessions.On("Get", mock.Anything, sessionID).Return(grantedSession(true, true), nil)
	positions.On("GetPosition", mock.Anything, sessionID).Return(observerPosition(), nil)
	lister.On("List", mock.Anything, sessionID).Return(records, nil)

	tracker := &trackingGeocoder{next: geocode.NewStaticGeocoder(addressBook), delay: 5 * time.Millisecond}
	p := NewPipeline(sessions, positions, lister, tracker, logger.NewNop(), 3)

	result, err := p.Run(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, result.Contacts, 12)
	assert.LessOrEqual(t, tracker.maxSeen.Load(), int32(3))

	// all equidistant, so synced order survives the concurrent geocoding
	for i, c := range result.Contacts {
		assert.Equal(t, string(rune('a'+i)), c.ID)
	}
}

func TestPipeline_ConcurrentRunsAreIndependent(t *testing.T) {
	sessions := new(MockSessionGetter)
	positions := new(MockPositionGetter)
	lister := new(MockContactLister)

	sessions.On("Get", mock.Anything, sessionID).Return(grantedSession(true, true), nil)
	positions.On("GetPosition", mock.Anything, sessionID).Return(observerPosition(), nil)
	lister.On("List", mock.Anything, sessionID).Return([]contacts.Record{
		{ID: "london", Addresses: address("Westminster, London")},
		{ID: "esb", Addresses: address("350 5th Ave, New York")},
	}, nil)

	p := NewPipeline(sessions, positions, lister, geocode.NewStaticGeocoder(addressBook), logger.NewNop(), 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := p.Run(context.Background(), sessionID)
			if assert.NoError(t, err) && assert.Len(t, result.Contacts, 2) {
				assert.Equal(t, "esb", result.Contacts[0].ID)
			}
		}()
	}
	wg.Wait()
}
