package wire

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/tickfetch/tickfetch/packages/httperr"
)

// Executor performs one HTTP/1.1 exchange at a time over a lent
// connection. It owns framing and deadlines; it does not own the
// connection's lifecycle, which stays with the pool.
type Executor struct {
	// UserAgent is added to requests that do not set their own.
	UserAgent string

	// MaxHeaderBytes caps the response header section, trailers
	// included. Zero means DefaultMaxHeaderBytes.
	MaxHeaderBytes int

	// MaxBodyBytes caps the buffered response body. Zero means
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

func (e *Executor) maxHeader() int {
	if e.MaxHeaderBytes > 0 {
		return e.MaxHeaderBytes
	}
	return DefaultMaxHeaderBytes
}

func (e *Executor) maxBody() int64 {
	if e.MaxBodyBytes > 0 {
		return e.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}

// Do writes req to conn and reads the complete response, honoring the
// context's deadline and cancellation throughout. Errors come back as the
// typed httperr kinds; for transport errors the Sent and Received flags
// record how far the exchange got, which drives retry eligibility.
//
// On error the connection must be discarded: a failed exchange leaves the
// stream in an unknown framing state.
func (e *Executor) Do(ctx context.Context, conn Conn, req *Request) (*Response, error) {
	raw, err := EncodeRequest(req, e.UserAgent)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return nil, &httperr.TransportError{Op: "set deadline", Err: err}
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, &httperr.TransportError{Op: "set deadline", Err: err}
		}
	} else {
		conn.SetWriteDeadline(time.Time{})
		conn.SetReadDeadline(time.Time{})
	}

	// A blocked Read or Write only unblocks through its deadline, so
	// cancellation pokes the deadlines into the past. Do must not return
	// until the watcher has stopped, otherwise a late poke could land on
	// the connection after it has been handed to another request.
	if ctx.Done() != nil {
		watchStop := make(chan struct{})
		watchDone := make(chan struct{})
		go func() {
			defer close(watchDone)
			select {
			case <-ctx.Done():
				past := time.Unix(1, 0)
				conn.SetReadDeadline(past)
				conn.SetWriteDeadline(past)
			case <-watchStop:
			}
		}()
		defer func() {
			close(watchStop)
			<-watchDone
		}()
	}

	n, err := conn.Write(raw)
	if err != nil {
		return nil, e.failure(ctx, "write request", n > 0, false, err, httperr.StageSending, start)
	}

	rr := &responseReader{
		br:             conn.Reader(),
		maxHeaderBytes: e.maxHeader(),
		maxBodyBytes:   e.maxBody(),
	}
	resp, err := rr.read(req.Method)
	if err != nil {
		if errors.Is(err, errNoResponse) {
			return nil, &httperr.TransportError{Op: "read response", Sent: true, Received: false, Err: err}
		}
		return nil, e.failure(ctx, "read response", true, true, err, httperr.StageReceiving, start)
	}
	return resp, nil
}

// failure maps a low-level error to its typed form. Context state is
// consulted first: a cancel poke surfaces as a deadline error at the
// socket, and the poke must not masquerade as a timeout.
func (e *Executor) failure(ctx context.Context, op string, sent, received bool, err error, stage httperr.Stage, start time.Time) error {
	var pe *httperr.ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	if ctx.Err() == context.Canceled {
		return &httperr.CancelledError{Stage: stage, Err: context.Canceled}
	}
	if isTimeout(err) || ctx.Err() == context.DeadlineExceeded {
		return &httperr.TimeoutError{Stage: stage, Elapsed: time.Since(start), Err: err}
	}
	return &httperr.TransportError{Op: op, Sent: sent, Received: received, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
