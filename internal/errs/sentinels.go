// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/transport layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated indicates a missing, invalid or expired credential.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden indicates a failed role or ownership check.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates the actor exhausted the attempt budget for an action.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a request failed validation; the wrapping message is client-safe.
	ErrInvalidInput = errors.New("invalid input")
)
