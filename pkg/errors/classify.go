package errors

import (
	"context"
	"errors"
	"net/http"
)

// Classify maps an error to the status and code returned to clients. Unknown
// errors become a 500 with a generic message so internals do not leak.
func Classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrInvalidSessionID):
		return NewAppError(err, err.Error(), "INVALID_SESSION", http.StatusBadRequest)
	case errors.Is(err, ErrSessionNotFound):
		return NewAppError(err, err.Error(), "SESSION_NOT_FOUND", http.StatusUnauthorized)
	case errors.Is(err, ErrLocationPermissionDenied):
		return NewAppError(err, err.Error(), "PERMISSION_DENIED", http.StatusForbidden)
	case errors.Is(err, ErrPositionNotFound):
		return NewAppError(err, err.Error(), "POSITION_NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, ErrInvalidLatitude), errors.Is(err, ErrInvalidLongitude):
		return NewAppError(err, err.Error(), "INVALID_COORDINATES", http.StatusBadRequest)
	case errors.Is(err, ErrInvalidPermissionScope):
		return NewAppError(err, err.Error(), "INVALID_SCOPE", http.StatusBadRequest)
	case errors.Is(err, ErrTooManyContacts), errors.Is(err, ErrInvalidContact):
		return NewAppError(err, err.Error(), "INVALID_CONTACTS", http.StatusBadRequest)
	case errors.Is(err, ErrRateLimitExceeded):
		return NewAppError(err, err.Error(), "RATE_LIMIT", http.StatusTooManyRequests)
	case errors.Is(err, context.DeadlineExceeded):
		return NewAppError(err, "Ranking timed out", "TIMEOUT", http.StatusGatewayTimeout)
	}

	return NewAppError(err, "Internal error", "INTERNAL_ERROR", http.StatusInternalServerError)
}
