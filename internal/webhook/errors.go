package webhook

import (
	"errors"
	"net/http"

	"github.com/cexll/session-notes/internal/notes"
)

var (
	ErrMissingSignature   = errors.New("missing X-Hub-Signature-256 header")
	ErrMalformedSignature = errors.New("invalid signature format, expected 'sha256=<hash>'")
	// ErrBadRequest marks submissions rejected before any remote call.
	ErrBadRequest = errors.New("invalid submission")
	// ErrBodyTooLarge indicates the request body exceeded the intake limit.
	ErrBodyTooLarge = errors.New("request body too large")
)

// statusFor maps an upsert or intake error to the response status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, notes.ErrInvalidPayload), errors.Is(err, notes.ErrRedactedKey):
		return http.StatusBadRequest
	case errors.Is(err, ErrBodyTooLarge), errors.Is(err, notes.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, notes.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusBadGateway
}
