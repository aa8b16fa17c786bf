package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/askwhyharsh/nearcontacts/internal/location"
	apperrors "github.com/askwhyharsh/nearcontacts/pkg/errors"
	"github.com/askwhyharsh/nearcontacts/pkg/logger"
)

const maxAttempts = 4

// ORSGeocoder calls the OpenRouteService search endpoint (Pelias).
type ORSGeocoder struct {
	baseURL        string
	apiKey         string
	country        string
	client         *http.Client
	logger         logger.Logger
	initialBackoff time.Duration
}

type orsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("geocode provider returned %d: %s", e.Code, e.Body)
}

// NewORSGeocoder builds a geocoder. country limits results to one ISO
// country code and may be empty.
func NewORSGeocoder(baseURL, apiKey, country string, timeout time.Duration, log logger.Logger) (*ORSGeocoder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ors geocoder: api key is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("ors geocoder: base url is required")
	}

	return &ORSGeocoder{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		country:        country,
		client:         &http.Client{Timeout: timeout},
		logger:         log,
		initialBackoff: 200 * time.Millisecond,
	}, nil
}

func (o *ORSGeocoder) Geocode(ctx context.Context, address string) (location.GeoPoint, error) {
	start := time.Now()

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return o.newSearchRequest(ctx, address)
	})
	if err != nil {
		return location.GeoPoint{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	defer resp.Body.Close()

	var decoded orsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return location.GeoPoint{}, fmt.Errorf("geocode %q: decode response: %w", address, err)
	}

	o.logger.Debug("Geocoded address", "address", address, "results", len(decoded.Features), "duration", time.Since(start))

	if len(decoded.Features) == 0 {
		return location.GeoPoint{}, fmt.Errorf("geocode %q: %w", address, apperrors.ErrNoGeocodeResult)
	}

	// GeoJSON order is [lon, lat]
	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) < 2 {
		return location.GeoPoint{}, fmt.Errorf("geocode %q: invalid coordinate format", address)
	}

	point, err := location.NewGeoPoint(coords[1], coords[0])
	if err != nil {
		return location.GeoPoint{}, fmt.Errorf("geocode %q: %w", address, err)
	}

	return point, nil
}

func (o *ORSGeocoder) newSearchRequest(ctx context.Context, address string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/geocode/search", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", o.apiKey)
	req.Header.Set("Accept", "application/json")

	q := req.URL.Query()
	q.Set("text", address)
	q.Set("size", "1")
	if o.country != "" {
		q.Set("boundary.country", o.country)
	}
	req.URL.RawQuery = q.Encode()

	return req, nil
}

func (o *ORSGeocoder) do(req *http.Request) (*http.Response, error) {
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// doWithRetry retries network errors, 429 and 5xx with exponential backoff.
func (o *ORSGeocoder) doWithRetry(
	ctx context.Context,
	makeReq func() (*http.Request, error),
) (*http.Response, error) {
	backoff := o.initialBackoff

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}

		resp, err := o.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || attempt == maxAttempts {
			return nil, lastErr
		}

		o.logger.Warn("Geocode request failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
	}

	return nil, lastErr
}

func retryable(err error) bool {
	var he *httpStatusError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
