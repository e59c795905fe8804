package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/tickfetch/tickfetch/packages/httperr"
)

// errNoResponse signals that the connection reached EOF before a single
// response byte arrived. The executor maps it to a transport failure with
// Received=false, which is the one shape of read error that is retryable.
var errNoResponse = errors.New("connection closed before any response byte")

// maxInformational bounds how many 1xx interim responses are skipped
// before the parse gives up.
const maxInformational = 5

type responseReader struct {
	br             *bufio.Reader
	maxHeaderBytes int
	maxBodyBytes   int64

	// headerBytes accumulates across status line, headers and trailers.
	headerBytes int
}

func (rr *responseReader) read(method string) (*Response, error) {
	resp := &Response{}

	for skipped := 0; ; skipped++ {
		if skipped > maxInformational {
			return nil, &httperr.ProtocolError{Reason: "too many interim 1xx responses"}
		}
		proto, code, status, err := rr.readStatusLine()
		if err != nil {
			return nil, err
		}
		if code >= 100 && code < 200 && code != 101 {
			// Interim response: discard its header block and wait for
			// the final status line.
			if _, err := rr.readHeaders(); err != nil {
				return nil, err
			}
			continue
		}
		resp.Proto = proto
		resp.StatusCode = code
		resp.Status = status
		break
	}

	headers, err := rr.readHeaders()
	if err != nil {
		return nil, err
	}
	resp.Headers = headers

	if err := rr.readBody(resp, method); err != nil {
		return nil, err
	}
	return resp, nil
}

// readLine reads one CRLF-terminated line, counting the raw bytes against
// the header budget so a hostile peer cannot feed unbounded header data.
func (rr *responseReader) readLine() (string, error) {
	var line []byte
	for {
		chunk, err := rr.br.ReadSlice('\n')
		line = append(line, chunk...)
		rr.headerBytes += len(chunk)
		if rr.headerBytes > rr.maxHeaderBytes {
			return "", &httperr.ProtocolError{Reason: fmt.Sprintf("header section exceeds %d bytes", rr.maxHeaderBytes)}
		}
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return string(line), err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

func (rr *responseReader) readStatusLine() (proto string, code int, status string, err error) {
	line, err := rr.readLine()
	if err != nil {
		if line == "" && errors.Is(err, io.EOF) {
			return "", 0, "", errNoResponse
		}
		return "", 0, "", err
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, "", &httperr.ProtocolError{Reason: fmt.Sprintf("invalid status line %q", line)}
	}
	proto = parts[0]
	if !strings.HasPrefix(proto, "HTTP/") {
		return "", 0, "", &httperr.ProtocolError{Reason: fmt.Sprintf("invalid protocol %q", proto)}
	}
	code, convErr := strconv.Atoi(parts[1])
	if convErr != nil || code < 100 || code > 599 {
		return "", 0, "", &httperr.ProtocolError{Reason: fmt.Sprintf("invalid status code %q", parts[1])}
	}
	status = parts[1]
	if len(parts) == 3 && parts[2] != "" {
		status += " " + parts[2]
	}
	return proto, code, status, nil
}

// readHeaders reads header lines until the blank separator, preserving
// arrival order and duplicates. Obs-fold continuation lines are appended
// to the previous header's value.
func (rr *responseReader) readHeaders() ([]Header, error) {
	var headers []Header
	for {
		line, err := rr.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			return headers, nil
		}
		if (line[0] == ' ' || line[0] == '\t') && len(headers) > 0 {
			headers[len(headers)-1].Value += " " + strings.TrimSpace(line)
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &httperr.ProtocolError{Reason: fmt.Sprintf("invalid header line %q", line)}
		}
		headers = append(headers, Header{
			Name:  textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name)),
			Value: strings.TrimSpace(value),
		})
	}
}

func (rr *responseReader) readBody(resp *Response, method string) error {
	if method == "HEAD" || resp.StatusCode == 204 || resp.StatusCode == 304 {
		resp.KeepAlive = !connWantsClose(resp)
		return nil
	}

	if te := resp.Header("Transfer-Encoding"); te != "" {
		if !strings.Contains(strings.ToLower(te), "chunked") {
			return &httperr.ProtocolError{Reason: fmt.Sprintf("unsupported transfer encoding %q", te)}
		}
		body, trailers, err := rr.readChunked()
		if err != nil {
			return err
		}
		resp.Body = body
		resp.Headers = append(resp.Headers, trailers...)
		resp.KeepAlive = !connWantsClose(resp)
		return nil
	}

	if cl := resp.Header("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return &httperr.ProtocolError{Reason: fmt.Sprintf("invalid Content-Length %q", cl)}
		}
		if n > rr.maxBodyBytes {
			return &httperr.ProtocolError{Reason: fmt.Sprintf("response body of %d bytes exceeds %d byte limit", n, rr.maxBodyBytes)}
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(rr.br, body); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		resp.Body = body
		resp.KeepAlive = !connWantsClose(resp)
		return nil
	}

	// No framing headers at all: the body runs until the server closes
	// the connection, which also ends the connection's useful life.
	body, err := io.ReadAll(io.LimitReader(rr.br, rr.maxBodyBytes+1))
	if err != nil {
		return err
	}
	if int64(len(body)) > rr.maxBodyBytes {
		return &httperr.ProtocolError{Reason: fmt.Sprintf("response body exceeds %d byte limit", rr.maxBodyBytes)}
	}
	resp.Body = body
	resp.KeepAlive = false
	return nil
}

func (rr *responseReader) readChunked() ([]byte, []Header, error) {
	var body bytes.Buffer
	for {
		line, err := rr.br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if i := strings.IndexByte(line, ';'); i >= 0 {
			// Chunk extensions are allowed but carry nothing we use.
			line = line[:i]
		}
		size, perr := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
		if perr != nil || size < 0 {
			return nil, nil, &httperr.ProtocolError{Reason: fmt.Sprintf("invalid chunk size %q", line)}
		}
		if size == 0 {
			break
		}
		if int64(body.Len())+size > rr.maxBodyBytes {
			return nil, nil, &httperr.ProtocolError{Reason: fmt.Sprintf("response body exceeds %d byte limit", rr.maxBodyBytes)}
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(rr.br, chunk); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, nil, err
		}
		body.Write(chunk)
		if err := rr.discardChunkCRLF(); err != nil {
			return nil, nil, err
		}
	}

	// Trailer fields follow the zero chunk, terminated by a blank line.
	trailers, err := rr.readHeaders()
	if err != nil {
		return nil, nil, err
	}
	return body.Bytes(), trailers, nil
}

func (rr *responseReader) discardChunkCRLF() error {
	b, err := rr.br.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	if b == '\n' {
		return nil
	}
	if b != '\r' {
		return &httperr.ProtocolError{Reason: "malformed chunk terminator"}
	}
	b, err = rr.br.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	if b != '\n' {
		return &httperr.ProtocolError{Reason: "malformed chunk terminator"}
	}
	return nil
}

func connWantsClose(resp *Response) bool {
	conn := strings.ToLower(resp.Header("Connection"))
	if resp.Proto == "HTTP/1.0" {
		return !strings.Contains(conn, "keep-alive")
	}
	return strings.Contains(conn, "close")
}
