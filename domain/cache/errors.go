package cache

import "errors"

// Domain errors for cache operations.
var (
	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrConnectionFailed is returned when a remote backend cannot be reached.
	ErrConnectionFailed = errors.New("cache connection failed")

	// ErrOperationTimeout is returned when a backend operation times out.
	ErrOperationTimeout = errors.New("cache operation timeout")

	// ErrUnknownBackend is returned for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown cache backend")
)
