package client

import "errors"

// Errors returned by Client implementations. Anything that may succeed on
// a later attempt wraps ErrUnavailable.
var (
	ErrUnavailable  = errors.New("remote unavailable")
	ErrUnauthorized = errors.New("remote rejected the credentials")
)
