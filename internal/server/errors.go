package server

import (
	"errors"
	"net/http"

	"cipherlink/internal/auth"
	"cipherlink/internal/domain"
)

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, domain.ErrProofRejected):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotLinked),
		errors.Is(err, domain.ErrSelfSession),
		errors.Is(err, domain.ErrInvalidKey),
		errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrStaleKey):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownOrExpiredSession):
		return http.StatusGone
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the error text a client may see. Internal failures are
// not described beyond their class.
func publicMessage(err error, status int) string {
	if status != http.StatusInternalServerError {
		return err.Error()
	}
	if errors.Is(err, domain.ErrStorage) {
		return domain.ErrStorage.Error()
	}
	return "internal error"
}
