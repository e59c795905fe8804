package httperr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportErrorUnwrap(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := &TransportError{Op: "read response body", Sent: true, Received: true, Err: cause}

	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Contains(t, err.Error(), "read response body")

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Sent)
	assert.True(t, te.Received)
}

func TestPredicatesMatchThroughWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{
			name: "timeout inside request failure",
			err: &RequestFailedError{
				Method:   "GET",
				Host:     "example.com",
				Attempts: 4,
				Err:      &TimeoutError{Stage: StageReceiving, Elapsed: time.Second},
			},
			pred: IsTimeout,
		},
		{
			name: "transport inside request failure",
			err: &RequestFailedError{
				Method:   "GET",
				Host:     "example.com",
				Attempts: 2,
				Err:      &TransportError{Op: "dial", Err: errors.New("connection refused")},
			},
			pred: IsTransport,
		},
		{
			name: "cancellation with fmt wrapping",
			err:  fmt.Errorf("send: %w", &CancelledError{Stage: StageAcquiring, Err: context.Canceled}),
			pred: IsCancelled,
		},
		{
			name: "pool exhaustion",
			err:  &PoolExhaustedError{Host: "example.com:443", Waited: 5 * time.Second},
			pred: IsPoolExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.pred(tt.err))
		})
	}
}

func TestPredicatesRejectOtherTypes(t *testing.T) {
	plain := errors.New("boom")

	assert.False(t, IsTimeout(plain))
	assert.False(t, IsTransport(plain))
	assert.False(t, IsCancelled(plain))
	assert.False(t, IsPoolExhausted(plain))
}

func TestCancelledErrorKeepsCause(t *testing.T) {
	err := &CancelledError{Stage: StageSending, Err: context.Canceled}
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMessagesCarryContext(t *testing.T) {
	lifecycle := &LifecycleError{Op: "connect", State: "closing"}
	assert.Equal(t, "http client cannot connect while closing", lifecycle.Error())

	notConnected := &NotConnectedError{Op: "GET", State: "disconnected"}
	assert.Contains(t, notConnected.Error(), "not connected")

	exhausted := &PoolExhaustedError{Host: "api.example.com:443", Waited: 1500 * time.Millisecond}
	assert.Contains(t, exhausted.Error(), "api.example.com:443")
	assert.Contains(t, exhausted.Error(), "1.5s")

	failed := &RequestFailedError{Method: "GET", Host: "api.example.com", Attempts: 4, Err: errors.New("reset")}
	assert.Contains(t, failed.Error(), "after 4 attempt(s)")
}
