package errors

import "errors"

var (
	// Session errors
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session ID")

	// Permission errors
	ErrLocationPermissionDenied = errors.New("permission to access location was denied")
	ErrInvalidPermissionScope = errors.New("permission scope must be location or contacts")

	// Validation errors
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
	ErrTooManyContacts  = errors.New("too many contacts in one sync")
	ErrInvalidContact   = errors.New("invalid contact")

	// Location errors
	ErrPositionNotFound = errors.New("current position not reported yet")

	// Geocoding errors
	ErrNoGeocodeResult = errors.New("no geocode result for address")

	// Rate limit errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

type AppError struct {
	Err        error
	Message    string
	Code       string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(err error, message, code string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
	}
}
