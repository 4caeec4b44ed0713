package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP responses.
var (
	ErrCaptureNotFound = errors.New("capture_not_found")
	ErrStreamClosed    = errors.New("stream_closed")
)
