package notes

import "errors"

var (
	// ErrInvalidPayload indicates the caller-supplied payload is not a JSON object.
	ErrInvalidPayload = errors.New("payload must be a JSON object")
	// ErrTooLarge indicates no reduction brought the document under the size limit.
	ErrTooLarge = errors.New("generated comment is too large")
	// ErrRedactedKey indicates a tool or session id that looks like a secret or
	// a home path; it would be rewritten in the document and never match again.
	ErrRedactedKey = errors.New("session key contains secret-like or home-path text")
	// ErrConflict indicates every write attempt lost a race with another writer.
	ErrConflict = errors.New("failed to update PR comment after merge/verify retries")
)
