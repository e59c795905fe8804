package client

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tickfetch/tickfetch/packages/wire"
)

// Request is one logical HTTP request. Construct it with NewRequest or
// through the Get/Post/Put/Delete helpers; once handed to Send it must not
// be mutated.
type Request struct {
	Method string
	URL    string

	// Headers hold caller headers. Names are matched case-insensitively
	// and the last write for a name wins.
	Headers map[string]string

	Body []byte

	// Timeout overrides the client's default request timeout when set.
	Timeout time.Duration

	// Idempotent attests that the request is safe to retry even though
	// its method is not idempotent by definition. GET, HEAD, PUT, DELETE,
	// OPTIONS and TRACE are retried without this flag.
	Idempotent bool
}

// RequestOption customizes a single request.
type RequestOption func(*Request)

// WithHeader sets one header on the request, replacing any existing value
// for the name regardless of case.
func WithHeader(name, value string) RequestOption {
	return func(r *Request) {
		setHeader(r.Headers, name, value)
	}
}

// WithHeaders sets a batch of headers on the request.
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *Request) {
		for name, value := range headers {
			setHeader(r.Headers, name, value)
		}
	}
}

// WithTimeout overrides the client's default timeout for this request.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *Request) {
		if d > 0 {
			r.Timeout = d
		}
	}
}

// WithIdempotent marks the request as safe to retry after a transport
// failure even when its method is non-idempotent.
func WithIdempotent() RequestOption {
	return func(r *Request) {
		r.Idempotent = true
	}
}

// NewRequest builds a Request for Send.
func NewRequest(method, url string, body []byte, opts ...RequestOption) *Request {
	r := &Request{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: make(map[string]string),
		Body:    body,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// setHeader enforces case-insensitive last-write-wins semantics on a
// header map.
func setHeader(headers map[string]string, name, value string) {
	for existing := range headers {
		if strings.EqualFold(existing, name) {
			delete(headers, existing)
		}
	}
	headers[name] = value
}

// Response is the result of a completed request. Headers keep wire order
// with duplicates preserved; Data is the full response body.
type Response struct {
	Status     int
	StatusText string
	Proto      string
	Headers    []wire.Header
	Data       []byte

	// Elapsed covers the whole Send, retries and backoff included.
	Elapsed time.Duration

	// Attempts is how many executions it took, 1 when no retry happened.
	Attempts int
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

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Data) }

// JSON parses the body as JSON for ad-hoc inspection.
func (r *Response) JSON() gjson.Result { return gjson.ParseBytes(r.Data) }

// Field extracts one JSON field from the body by gjson path.
func (r *Response) Field(path string) gjson.Result { return gjson.GetBytes(r.Data, path) }

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }
