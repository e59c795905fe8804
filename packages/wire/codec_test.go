package wire

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickfetch/tickfetch/packages/httperr"
)

func TestEncodeRequestMinimalGet(t *testing.T) {
	raw, err := EncodeRequest(&Request{
		Method: "GET",
		Host:   "api.example.com",
		Path:   "/v1/ticks?symbol=BTCUSD",
	}, "tickfetch/1.0")
	require.NoError(t, err)

	want := "GET /v1/ticks?symbol=BTCUSD HTTP/1.1\r\n" +
		"Host: api.example.com\r\n" +
		"User-Agent: tickfetch/1.0\r\n" +
		"\r\n"
	assert.Equal(t, want, string(raw))
}

func TestEncodeRequestPostWithBody(t *testing.T) {
	raw, err := EncodeRequest(&Request{
		Method:  "POST",
		Host:    "api.example.com",
		Path:    "/orders",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    []byte(`{"qty":42}`),
	}, "tickfetch/1.0")
	require.NoError(t, err)

	want := "POST /orders HTTP/1.1\r\n" +
		"Host: api.example.com\r\n" +
		"Content-Type: application/json\r\n" +
		"User-Agent: tickfetch/1.0\r\n" +
		"Content-Length: 10\r\n" +
		"\r\n" +
		`{"qty":42}`
	assert.Equal(t, want, string(raw))
}

func TestEncodeRequestPostEmptyBodyHasContentLength(t *testing.T) {
	raw, err := EncodeRequest(&Request{Method: "POST", Host: "h", Path: "/p"}, "")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Content-Length: 0\r\n")
}

func TestEncodeRequestGetWithoutBodyOmitsContentLength(t *testing.T) {
	raw, err := EncodeRequest(&Request{Method: "GET", Host: "h", Path: "/p"}, "")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Content-Length")
}

func TestEncodeRequestSortsHeaders(t *testing.T) {
	raw, err := EncodeRequest(&Request{
		Method: "GET",
		Host:   "h",
		Path:   "/",
		Headers: map[string]string{
			"X-Api-Key": "secret",
			"Accept":    "application/json",
		},
	}, "")
	require.NoError(t, err)

	text := string(raw)
	assert.Less(t, strings.Index(text, "Accept:"), strings.Index(text, "X-Api-Key:"))
}

func TestEncodeRequestDropsFramingHeaders(t *testing.T) {
	raw, err := EncodeRequest(&Request{
		Method: "GET",
		Host:   "real.example.com",
		Path:   "/",
		Headers: map[string]string{
			"host":              "spoofed.example.com",
			"Content-Length":    "999",
			"Transfer-Encoding": "chunked",
			"Connection":        "close",
			"Accept":            "*/*",
		},
	}, "")
	require.NoError(t, err)

	text := string(raw)
	assert.Contains(t, text, "Host: real.example.com\r\n")
	assert.NotContains(t, text, "spoofed")
	assert.NotContains(t, text, "Content-Length")
	assert.NotContains(t, text, "Transfer-Encoding")
	assert.NotContains(t, text, "Connection")
	assert.Contains(t, text, "Accept: */*\r\n")
}

func TestEncodeRequestUserAgentNotDuplicated(t *testing.T) {
	raw, err := EncodeRequest(&Request{
		Method:  "GET",
		Host:    "h",
		Path:    "/",
		Headers: map[string]string{"User-Agent": "custom/2.0"},
	}, "tickfetch/1.0")
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(string(raw), "User-Agent"))
	assert.Contains(t, string(raw), "User-Agent: custom/2.0\r\n")
}

func TestEncodeRequestEmptyPathBecomesRoot(t *testing.T) {
	raw, err := EncodeRequest(&Request{Method: "GET", Host: "h"}, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "GET / HTTP/1.1\r\n"))
}

func TestEncodeRequestRejectsMissingFields(t *testing.T) {
	_, err := EncodeRequest(&Request{Host: "h"}, "")
	assert.Error(t, err)

	_, err = EncodeRequest(&Request{Method: "GET"}, "")
	assert.Error(t, err)
}

func newTestReader(raw string) *responseReader {
	return &responseReader{
		br:             bufio.NewReader(strings.NewReader(raw)),
		maxHeaderBytes: DefaultMaxHeaderBytes,
		maxBodyBytes:   DefaultMaxBodyBytes,
	}
}

func TestReadSimpleResponse(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: 27\r\n" +
		"\r\n" +
		`{"symbol":"BTCUSD","px":42}`

	resp, err := newTestReader(raw).read("GET")
	require.NoError(t, err)

	assert.Equal(t, "HTTP/1.1", resp.Proto)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "200 OK", resp.Status)
	assert.Equal(t, `{"symbol":"BTCUSD","px":42}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.Header("content-type"))
	assert.True(t, resp.KeepAlive)
}

func TestReadPreservesHeaderOrderAndDuplicates(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Set-Cookie: a=1\r\n" +
		"X-Trace: abc\r\n" +
		"Set-Cookie: b=2\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"

	resp, err := newTestReader(raw).read("GET")
	require.NoError(t, err)

	require.Len(t, resp.Headers, 4)
	assert.Equal(t, Header{Name: "Set-Cookie", Value: "a=1"}, resp.Headers[0])
	assert.Equal(t, Header{Name: "X-Trace", Value: "abc"}, resp.Headers[1])
	assert.Equal(t, Header{Name: "Set-Cookie", Value: "b=2"}, resp.Headers[2])
	assert.Equal(t, []string{"a=1", "b=2"}, resp.HeaderValues("set-cookie"))
}

func TestReadChunkedBodyWithTrailers(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"4\r\nWiki\r\n" +
		"5\r\npedia\r\n" +
		"E;ext=1\r\n in\r\n\r\nchunks.\r\n" +
		"0\r\n" +
		"Expires: later\r\n" +
		"\r\n"

	resp, err := newTestReader(raw).read("GET")
	require.NoError(t, err)

	assert.Equal(t, "Wikipedia in\r\n\r\nchunks.", string(resp.Body))
	assert.Equal(t, "later", resp.Header("Expires"))
	assert.True(t, resp.KeepAlive)
}

func TestReadChunkedInvalidSize(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"zz\r\n"

	_, err := newTestReader(raw).read("GET")
	var pe *httperr.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "chunk size")
}

func TestReadBodyToEOFWithoutFraming(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"\r\n" +
		"stream until close"

	resp, err := newTestReader(raw).read("GET")
	require.NoError(t, err)

	assert.Equal(t, "stream until close", string(resp.Body))
	assert.False(t, resp.KeepAlive, "close-delimited body cannot leave the connection reusable")
}

func TestReadHTTP10ConnectionSemantics(t *testing.T) {
	resp, err := newTestReader("HTTP/1.0 200 OK\r\nContent-Length: 2\r\n\r\nok").read("GET")
	require.NoError(t, err)
	assert.False(t, resp.KeepAlive)

	resp, err = newTestReader("HTTP/1.0 200 OK\r\nConnection: keep-alive\r\nContent-Length: 2\r\n\r\nok").read("GET")
	require.NoError(t, err)
	assert.True(t, resp.KeepAlive)
}

func TestReadConnectionCloseHeader(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nConnection: close\r\nContent-Length: 2\r\n\r\nok"
	resp, err := newTestReader(raw).read("GET")
	require.NoError(t, err)
	assert.False(t, resp.KeepAlive)
}

func TestReadNoBodyStatuses(t *testing.T) {
	resp, err := newTestReader("HTTP/1.1 204 No Content\r\n\r\n").read("GET")
	require.NoError(t, err)
	assert.Empty(t, resp.Body)
	assert.True(t, resp.KeepAlive)

	resp, err = newTestReader("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n").read("HEAD")
	require.NoError(t, err)
	assert.Empty(t, resp.Body)
	assert.True(t, resp.KeepAlive)
}

func TestReadSkipsInterimResponses(t *testing.T) {
	raw := "HTTP/1.1 100 Continue\r\n\r\n" +
		"HTTP/1.1 103 Early Hints\r\nLink: </style.css>; rel=preload\r\n\r\n" +
		"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"

	resp, err := newTestReader(raw).read("GET")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestReadObsFoldContinuation(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"X-Long: part1\r\n" +
		"  part2\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"

	resp, err := newTestReader(raw).read("GET")
	require.NoError(t, err)
	assert.Equal(t, "part1 part2", resp.Header("X-Long"))
}

func TestReadStatusWithoutReasonPhrase(t *testing.T) {
	resp, err := newTestReader("HTTP/1.1 204\r\n\r\n").read("GET")
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
	assert.Equal(t, "204", resp.Status)
}

func TestReadRejectsMalformedStatusLines(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not http at all", "garbage\r\n\r\n"},
		{"missing status code", "HTTP/1.1\r\n\r\n"},
		{"wrong protocol", "TCP/1.1 200 OK\r\n\r\n"},
		{"non numeric code", "HTTP/1.1 abc OK\r\n\r\n"},
		{"code below range", "HTTP/1.1 99 Low\r\n\r\n"},
		{"code above range", "HTTP/1.1 600 High\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestReader(tt.raw).read("GET")
			var pe *httperr.ProtocolError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestReadRejectsHeaderWithoutColon(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nbroken header line\r\n\r\n"
	_, err := newTestReader(raw).read("GET")
	var pe *httperr.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "header")
}

func TestReadRejectsInvalidContentLength(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: -5\r\n\r\n"
	_, err := newTestReader(raw).read("GET")
	var pe *httperr.ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestReadTruncatedBody(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\nshort"
	_, err := newTestReader(raw).read("GET")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadNoResponseBytes(t *testing.T) {
	_, err := newTestReader("").read("GET")
	assert.True(t, errors.Is(err, errNoResponse))
}

func TestReadHeaderSectionLimit(t *testing.T) {
	rr := newTestReader("HTTP/1.1 200 OK\r\nX-Big: " + strings.Repeat("a", 4096) + "\r\n\r\n")
	rr.maxHeaderBytes = 128

	_, err := rr.read("GET")
	var pe *httperr.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "header section")
}

func TestReadBodyLimit(t *testing.T) {
	rr := newTestReader("HTTP/1.1 200 OK\r\nContent-Length: 1000\r\n\r\n" + strings.Repeat("a", 1000))
	rr.maxBodyBytes = 64

	_, err := rr.read("GET")
	var pe *httperr.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "limit")
}
