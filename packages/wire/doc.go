// Package wire implements HTTP/1.1 framing directly over a byte stream.
//
// It serializes requests and parses responses without net/http, which
// keeps the client in full control of connection reuse, deadlines and
// error classification:
//   - Request lines, a Host header and explicit Content-Length framing
//   - Response status line parsing with interim 1xx handling
//   - Header parsing that preserves arrival order and duplicates
//   - Content-Length, chunked (with trailers) and read-to-EOF bodies
//
// The Executor drives a single exchange over a lent connection and maps
// every failure to the typed errors in the httperr package.
package wire
