// Package transport defines the abstract duplex message socket the rest
// of birpc builds on, plus a gorilla/websocket-backed implementation.
// Concrete adapters wrap whatever underlying library provides the actual
// WebSocket (or other duplex stream) I/O; birpc never talks to a raw
// socket directly.
package transport

import (
	"context"
	"fmt"
)

// Adapter is the outbound-connection contract: connect, send, receive,
// close. Recv returns (nil, nil) when the peer closed the connection
// cleanly -- that is not an error.
type Adapter interface {
	Connect(ctx context.Context, uri string, opts map[string]any) error
	Send(ctx context.Context, data []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close(code int) error
}

// ForbiddenError marks a connect failure the retry wrapper must not
// retry: the peer rejected the connection with HTTP 401 or 403. This
// replaces duck-typed inspection of a nested ".response.status_code" in
// the original implementation with an explicit typed error (Design Note 9).
type ForbiddenError struct {
	StatusCode int
	Cause      error
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("transport: forbidden (status %d): %v", e.StatusCode, e.Cause)
}

func (e *ForbiddenError) Unwrap() error { return e.Cause }

// IsForbidden reports whether status is one of the non-retryable codes.
func IsForbidden(status int) bool {
	return status == 401 || status == 403
}

// TransientError marks any other connect failure: network blip, refused
// connection, DNS failure, 5xx upgrade rejection. These are retried per
// the client's backoff configuration.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transport: transient: %v", e.Cause) }
func (e *TransientError) Unwrap() error { return e.Cause }
