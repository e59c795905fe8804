package wire

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Methods that carry a request body even when it is empty. They always get
// an explicit Content-Length so the server never has to guess the framing.
func methodHasBody(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

// framing-controlled headers the encoder owns; caller-supplied values for
// these are dropped.
func isReservedHeader(name string) bool {
	switch strings.ToLower(name) {
	case "host", "content-length", "transfer-encoding", "connection":
		return true
	}
	return false
}

// EncodeRequest serializes req into HTTP/1.1 wire format. Caller headers
// are written in sorted name order after the Host line. A User-Agent is
// added from userAgent unless the caller set one.
func EncodeRequest(req *Request, userAgent string) ([]byte, error) {
	if req.Method == "" {
		return nil, fmt.Errorf("encode request: empty method")
	}
	if req.Host == "" {
		return nil, fmt.Errorf("encode request: empty host")
	}

	path := req.Path
	if path == "" {
		path = "/"
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", req.Method, path)
	fmt.Fprintf(&b, "Host: %s\r\n", req.Host)

	names := make([]string, 0, len(req.Headers))
	hasUserAgent := false
	for name := range req.Headers {
		if isReservedHeader(name) {
			continue
		}
		if strings.EqualFold(name, "User-Agent") {
			hasUserAgent = true
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\r\n", name, req.Headers[name])
	}

	if !hasUserAgent && userAgent != "" {
		fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	}

	if len(req.Body) > 0 || methodHasBody(req.Method) {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(req.Body))
	}

	b.WriteString("\r\n")
	b.Write(req.Body)

	return b.Bytes(), nil
}
