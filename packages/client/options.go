package client

import (
	"crypto/tls"
	"time"

	"go.uber.org/zap"

	"github.com/tickfetch/tickfetch/packages/pool"
	"github.com/tickfetch/tickfetch/packages/stats"
)

// Defaults applied by New when the matching option is not given.
const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultMaxRetries     = 3
	DefaultBackoffBase    = 500 * time.Millisecond
	DefaultBackoffCap     = 10 * time.Second
	DefaultDrainGrace     = 5 * time.Second
	DefaultUserAgent      = "tickfetch"
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithMaxPerHost sets the connection cap per host key.
func WithMaxPerHost(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPerHost = n
		}
	}
}

// WithMaxTotal sets the connection cap across all hosts.
func WithMaxTotal(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTotal = n
		}
	}
}

// WithIdleTimeout sets how long an idle connection may live unused.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.idleTimeout = d
		}
	}
}

// WithRequestTimeout sets the default per-request timeout, covering the
// whole acquire-send-receive cycle. Individual requests may override it.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithAcquireTimeout bounds how long a request waits for a pooled
// connection before failing with a pool exhaustion error. Zero, the
// default, waits until the request's own deadline.
func WithAcquireTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.acquireTimeout = d
		}
	}
}

// WithDialTimeout bounds each connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithDrainGrace sets how long Close waits for in-flight requests to
// return their connections before force-closing them.
func WithDrainGrace(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.drainGrace = d
		}
	}
}

// WithRetries sets how many times a retryable failure is attempted again.
// Zero disables retries.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay and the delay ceiling for retry
// backoff. The delay doubles each attempt and is jittered.
func WithBackoff(base, ceiling time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.backoffBase = base
		}
		if ceiling > 0 {
			c.backoffCap = ceiling
		}
	}
}

// WithMaxElapsed caps the total time spent on one request across all
// retry attempts. Zero leaves the request deadline in charge.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxElapsed = d
		}
	}
}

// WithRateLimit throttles request starts per host key to rps requests
// per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.rateLimit = rps
			c.rateBurst = burst
		}
	}
}

// WithUserAgent sets the User-Agent sent when requests do not set one.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithDefaultHeader adds a header applied to every request. Per-request
// headers with the same name win.
func WithDefaultHeader(name, value string) Option {
	return func(c *Client) {
		c.defaultHeaders[name] = value
	}
}

// WithDefaultHeaders adds a set of headers applied to every request.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(c *Client) {
		for name, value := range headers {
			c.defaultHeaders[name] = value
		}
	}
}

// WithMaxHeaderBytes caps the response header section size.
func WithMaxHeaderBytes(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxHeaderBytes = n
		}
	}
}

// WithMaxBodyBytes caps the buffered response body size.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithTLSConfig sets the TLS configuration for https connections.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		c.tlsConfig = cfg
	}
}

// WithInsecureTLS disables certificate verification for https
// connections. Meant for test endpoints with self-signed certificates.
func WithInsecureTLS() Option {
	return func(c *Client) {
		if c.tlsConfig == nil {
			c.tlsConfig = &tls.Config{}
		}
		c.tlsConfig.InsecureSkipVerify = true
	}
}

// WithDialFunc replaces the transport dialer. Tests use this to hand the
// client in-memory connections.
func WithDialFunc(dial pool.DialFunc) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithStats attaches a metrics recorder fed by every request outcome.
func WithStats(rec *stats.Recorder) Option {
	return func(c *Client) {
		c.stats = rec
	}
}
