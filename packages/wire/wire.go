package wire

import (
	"bufio"
	"io"
	"strings"
	"time"
)

// Default limits applied when the Executor fields are zero.
const (
	DefaultMaxHeaderBytes = 64 * 1024
	DefaultMaxBodyBytes   = 64 << 20
)

// Header is a single header line as it appeared on the wire. Response
// headers keep arrival order and duplicates, which matters for Set-Cookie
// and for callers that inspect raw framing.
type Header struct {
	Name  string
	Value string
}

// Request is the executor's view of a single HTTP exchange. The client
// package resolves URLs, merges default headers and picks the connection;
// by the time a Request reaches the executor it is fully formed.
type Request struct {
	Method string

	// Host is the authority for the Host header, host:port as dialed.
	Host string

	// Path is the request target including any query string. Empty
	// means "/".
	Path string

	// Headers are serialized in sorted name order so the byte stream is
	// deterministic. Host, Content-Length, Transfer-Encoding and
	// Connection are framing-controlled here and ignored if present.
	Headers map[string]string

	Body []byte
}

// Response is a fully read HTTP response. The body is always buffered in
// full before the executor returns.
type Response struct {
	Proto      string
	StatusCode int
	Status     string
	Headers    []Header
	Body       []byte

	// KeepAlive reports whether the connection remained in a reusable
	// state after this exchange: body framing was self-delimiting and
	// neither side asked for a close.
	KeepAlive bool
}

// Header returns the first value of the named header, case-insensitively.
func (r *Response) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HeaderValues returns every value of the named header in arrival order.
func (r *Response) HeaderValues(name string) []string {
	var values []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// Conn is the transport surface the executor drives. The pool's connection
// type implements it; tests substitute in-memory pipes.
//
// Reader must return the same bufio.Reader for the lifetime of the
// connection. Response bytes buffered ahead of a parse position belong to
// the connection, not to any single exchange, so the reader has to survive
// between requests for pipelined bytes not to be lost.
type Conn interface {
	io.Writer
	Reader() *bufio.Reader
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}
