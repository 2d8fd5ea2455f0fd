package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without
// leaking infrastructure details. ErrChannel marks a recoverable
// push/transport failure; the dispatcher converts it into the FAILED
// transition instead of returning it to the caller.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrChannel      = errors.New("channel failure")
	ErrInternal     = errors.New("internal error")
)
