// Package common defines shared sentinel errors and small helpers used across
// the myid client layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Validation errors.
	ErrorInvalidArgument = errors.New("invalid argument")
	ErrorMalformedData   = errors.New("malformed data")

	// Authentication precondition errors.
	ErrAuthenticationRequired = errors.New("authentication required")
)
