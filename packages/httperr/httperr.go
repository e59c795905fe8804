// Package httperr defines the typed errors surfaced by the HTTP client.
//
// Every failure mode has its own type so callers can branch with errors.As
// instead of matching message strings. All wrapping types implement Unwrap,
// so errors.Is reaches the underlying cause (context.Canceled, io.EOF, net
// errors and so on).
package httperr

import (
	"errors"
	"fmt"
	"time"
)

// Stage identifies the phase of a request during which a failure occurred.
type Stage string

const (
	// StagePending covers the time before a connection is requested,
	// for example while waiting on a rate limiter or in retry backoff.
	StagePending Stage = "pending"

	// StageAcquiring covers waiting for a pooled connection.
	StageAcquiring Stage = "acquiring"

	// StageSending covers writing the request to the socket.
	StageSending Stage = "sending"

	// StageReceiving covers waiting for and reading the response.
	StageReceiving Stage = "receiving"
)

// LifecycleError reports an operation attempted in a client state that
// cannot serve it, such as Connect while the client is closing.
type LifecycleError struct {
	Op    string
	State string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("http client cannot %s while %s", e.Op, e.State)
}

// NotConnectedError reports a request issued before Connect or after Close.
type NotConnectedError struct {
	Op    string
	State string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("http client: %s: not connected (state %s)", e.Op, e.State)
}

// PoolExhaustedError reports that no connection for the host became
// available within the allowed wait.
type PoolExhaustedError struct {
	Host   string
	Waited time.Duration
	Err    error
}

func (e *PoolExhaustedError) Error() string {
	msg := fmt.Sprintf("connection pool exhausted for %s after %s", e.Host, e.Waited.Round(time.Millisecond))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PoolExhaustedError) Unwrap() error { return e.Err }

// TransportError reports a socket-level failure: dial errors, resets,
// unexpected EOF. Sent records whether any request bytes reached the wire,
// Received whether any response bytes came back. Retry decisions depend on
// both flags.
type TransportError struct {
	Op       string
	Sent     bool
	Received bool
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports a deadline expiring at any stage of a request.
type TimeoutError struct {
	Stage   Stage
	Elapsed time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out while %s after %s", e.Stage, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed or unparseable HTTP response.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return "malformed response: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// CancelledError reports that the caller cancelled an in-flight request.
type CancelledError struct {
	Stage Stage
	Err   error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("request cancelled while %s", e.Stage)
}

func (e *CancelledError) Unwrap() error { return e.Err }

// RequestFailedError wraps the last underlying error after all retry
// attempts for a request were used up.
type RequestFailedError struct {
	Method   string
	Host     string
	Attempts int
	Err      error
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.Host, e.Attempts, e.Err)
}

func (e *RequestFailedError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsCancelled reports whether err is or wraps a CancelledError.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}

// IsPoolExhausted reports whether err is or wraps a PoolExhaustedError.
func IsPoolExhausted(err error) bool {
	var pe *PoolExhaustedError
	return errors.As(err, &pe)
}
