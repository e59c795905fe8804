package pool

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Key identifies the connection group for one origin. Connections are only
// shared between requests whose scheme, host and port all match.
type Key struct {
	Scheme string
	Host   string
	Port   string
}

// KeyForURL derives the pooling key from a parsed request URL, filling in
// the default port for the scheme when the URL does not carry one.
func KeyForURL(u *url.URL) (Key, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Key{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return Key{}, fmt.Errorf("url %q has no host", u.String())
	}
	port := u.Port()
	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return Key{Scheme: scheme, Host: strings.ToLower(host), Port: port}, nil
}

// Address returns the host:port to dial.
func (k Key) Address() string {
	return net.JoinHostPort(k.Host, k.Port)
}

func (k Key) String() string {
	return k.Scheme + "://" + k.Address()
}
