package birpc

import "errors"

// ErrChannelClosed is returned by WaitForResponse when the channel's
// closed signal fired before a response arrived.
var ErrChannelClosed = errors.New("birpc: channel closed before response received")

// ErrTimeout is returned by WaitForResponse when the per-call timeout
// elapsed before a response (or close) arrived.
var ErrTimeout = errors.New("birpc: call timed out waiting for response")

// ErrUnknownMethod is returned by the remote proxy (Caller) when a name is
// underscore-prefixed and not a built-in, or is not in an optional
// whitelist. An inbound request for a method the registry does not expose
// gets no response at all; this error is not used on that path.
var ErrUnknownMethod = errors.New("birpc: unknown or forbidden method")

// RemoteValueError wraps a value that could not be decoded into a
// handler's argument type, or into a caller's expected result type.
type RemoteValueError struct {
	Err error
}

func (e *RemoteValueError) Error() string { return "birpc: remote value error: " + e.Err.Error() }
func (e *RemoteValueError) Unwrap() error { return e.Err }
