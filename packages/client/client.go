package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tickfetch/tickfetch/packages/httperr"
	"github.com/tickfetch/tickfetch/packages/pool"
	"github.com/tickfetch/tickfetch/packages/stats"
	"github.com/tickfetch/tickfetch/packages/wire"
)

// Client is a pooled HTTP/1.1 client. It must be connected before use and
// closed when done; between those two calls any number of goroutines may
// issue requests concurrently.
type Client struct {
	maxPerHost     int
	maxTotal       int
	idleTimeout    time.Duration
	requestTimeout time.Duration
	acquireTimeout time.Duration
	dialTimeout    time.Duration
	drainGrace     time.Duration
	maxRetries     int
	backoffBase    time.Duration
	backoffCap     time.Duration
	maxElapsed     time.Duration
	rateLimit      float64
	rateBurst      int
	userAgent      string
	defaultHeaders map[string]string
	maxHeaderBytes int
	maxBodyBytes   int64
	tlsConfig      *tls.Config
	dial           pool.DialFunc
	log            *zap.Logger
	stats          *stats.Recorder

	exec wire.Executor

	mu       sync.Mutex
	state    State
	pool     *pool.Pool
	closing  chan struct{}
	inflight sync.WaitGroup

	limitMu  sync.Mutex
	limiters map[pool.Key]*rate.Limiter
}

// New builds a disconnected Client. Call Connect before issuing requests.
func New(opts ...Option) *Client {
	c := &Client{
		maxPerHost:     pool.DefaultMaxPerHost,
		maxTotal:       pool.DefaultMaxTotal,
		idleTimeout:    pool.DefaultIdleTimeout,
		requestTimeout: DefaultRequestTimeout,
		dialTimeout:    pool.DefaultDialTimeout,
		drainGrace:     DefaultDrainGrace,
		maxRetries:     DefaultMaxRetries,
		backoffBase:    DefaultBackoffBase,
		backoffCap:     DefaultBackoffCap,
		rateBurst:      1,
		userAgent:      DefaultUserAgent,
		defaultHeaders: make(map[string]string),
		log:            zap.NewNop(),
		state:          StateDisconnected,
		limiters:       make(map[pool.Key]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.exec = wire.Executor{
		UserAgent:      c.userAgent,
		MaxHeaderBytes: c.maxHeaderBytes,
		MaxBodyBytes:   c.maxBodyBytes,
	}
	return c
}

// State reports the client's lifecycle position.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect initializes the connection pool and moves the client to
// Connected. Connecting an already connected client is a no-op; a client
// that has started closing cannot be reconnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnected:
		return nil
	case StateClosing, StateClosed:
		return &httperr.LifecycleError{Op: "connect", State: c.state.String()}
	}

	c.state = StateConnecting
	c.pool = pool.New(pool.Config{
		MaxPerHost:     c.maxPerHost,
		MaxTotal:       c.maxTotal,
		IdleTimeout:    c.idleTimeout,
		AcquireTimeout: c.acquireTimeout,
		DialTimeout:    c.dialTimeout,
		TLS:            c.tlsConfig,
		Dial:           c.dial,
		Logger:         c.log,
	})
	c.closing = make(chan struct{})
	c.state = StateConnected

	c.log.Info("http client connected",
		zap.Int("max_per_host", c.maxPerHost),
		zap.Int("max_total", c.maxTotal),
		zap.Duration("request_timeout", c.requestTimeout))
	return nil
}

// Close drains the pool and moves the client to Closed. In-flight requests
// get up to the drain grace to finish before their connections are
// force-closed. Close never fails and repeat calls are no-ops.
func (c *Client) Close(ctx context.Context) {
	c.mu.Lock()
	switch c.state {
	case StateClosing, StateClosed:
		c.mu.Unlock()
		return
	case StateDisconnected, StateConnecting:
		c.state = StateClosed
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	p := c.pool
	close(c.closing)
	c.mu.Unlock()

	p.Drain(c.drainGrace)
	c.inflight.Wait()

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.log.Info("http client closed")
}

// Disconnect is Close under the name embedding platforms use.
func (c *Client) Disconnect(ctx context.Context) { c.Close(ctx) }

// PoolStats reports connection pool occupancy, zero outside Connected.
func (c *Client) PoolStats() pool.Stats {
	c.mu.Lock()
	p := c.pool
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || p == nil {
		return pool.Stats{Hosts: map[string]int{}}
	}
	return p.Stats()
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Send(ctx, NewRequest("GET", url, nil, opts...))
}

// Post issues a POST request with the given body.
func (c *Client) Post(ctx context.Context, url string, body []byte, opts ...RequestOption) (*Response, error) {
	return c.Send(ctx, NewRequest("POST", url, body, opts...))
}

// Put issues a PUT request with the given body.
func (c *Client) Put(ctx context.Context, url string, body []byte, opts ...RequestOption) (*Response, error) {
	return c.Send(ctx, NewRequest("PUT", url, body, opts...))
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Send(ctx, NewRequest("DELETE", url, nil, opts...))
}

// Send executes req: it acquires a connection for the request's origin,
// performs the exchange, returns the connection to the pool, and retries
// transport failures permitted by the retry policy. The returned error is
// always one of the httperr types, except for malformed request URLs.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		return nil, &httperr.NotConnectedError{Op: req.Method + " " + req.URL, State: state.String()}
	}
	p := c.pool
	closing := c.closing
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", req.URL, err)
	}
	key, err := pool.KeyForURL(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", req.URL, err)
	}

	timeout := c.requestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if c.maxElapsed > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.maxElapsed)
		defer cancel()
	}

	wreq := &wire.Request{
		Method:  req.Method,
		Host:    hostHeader(u),
		Path:    u.RequestURI(),
		Headers: c.mergedHeaders(req),
		Body:    req.Body,
	}

	log := c.log.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("method", req.Method),
		zap.String("host", key.String()))

	start := time.Now()
	maxAttempts := 1 + c.maxRetries
	var lastErr error
	exhausted := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.attempt(ctx, p, key, wreq, log, attempt)
		if err == nil {
			resp.Elapsed = time.Since(start)
			resp.Attempts = attempt
			c.stats.Record(key.String(), req.Method, resp.Status, resp.Elapsed, nil)
			log.Info("response received",
				zap.Int("status", resp.Status),
				zap.Int("bytes", len(resp.Data)),
				zap.Int("attempt", attempt),
				zap.Duration("elapsed", resp.Elapsed))
			return resp, nil
		}
		lastErr = err

		if !retryable(req, err) {
			break
		}
		if attempt == maxAttempts {
			exhausted = true
			break
		}

		delay := backoffDelay(c.backoffBase, c.backoffCap, attempt)
		c.stats.RecordRetry()
		log.Warn("retry attempted",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = c.backoffInterrupted(ctx, lastErr, start)
			attempt = maxAttempts
		case <-closing:
			lastErr = &httperr.LifecycleError{Op: "send", State: "closing"}
			attempt = maxAttempts
		}
	}

	elapsed := time.Since(start)
	finalErr := lastErr
	if exhausted {
		finalErr = &httperr.RequestFailedError{
			Method:   req.Method,
			Host:     key.String(),
			Attempts: maxAttempts,
			Err:      lastErr,
		}
	}
	c.stats.Record(key.String(), req.Method, 0, elapsed, finalErr)
	log.Error("request failed",
		zap.Duration("elapsed", elapsed),
		zap.Error(finalErr))
	return nil, finalErr
}

// attempt runs one acquire-execute-release cycle.
func (c *Client) attempt(ctx context.Context, p *pool.Pool, key pool.Key, wreq *wire.Request, log *zap.Logger, attempt int) (*Response, error) {
	if lim := c.limiter(key); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			if ctx.Err() == context.Canceled {
				return nil, &httperr.CancelledError{Stage: httperr.StagePending, Err: context.Canceled}
			}
			return nil, &httperr.TimeoutError{Stage: httperr.StagePending, Err: err}
		}
	}

	acquireStart := time.Now()
	conn, err := p.Acquire(ctx, key)
	if err != nil {
		return nil, mapAcquireError(err, acquireStart)
	}

	log.Debug("request sent",
		zap.Uint64("conn", conn.ID()),
		zap.Int("attempt", attempt))

	resp, err := c.exec.Do(ctx, conn, wreq)
	if err != nil {
		// A failed exchange leaves the stream in an unknown framing
		// state; the connection cannot be reused.
		p.Release(conn, false)
		return nil, err
	}
	p.Release(conn, resp.KeepAlive)

	return &Response{
		Status:     resp.StatusCode,
		StatusText: resp.Status,
		Proto:      resp.Proto,
		Headers:    resp.Headers,
		Data:       resp.Body,
	}, nil
}

// mergedHeaders layers request headers over the client defaults,
// case-insensitively with the request winning.
func (c *Client) mergedHeaders(req *Request) map[string]string {
	merged := make(map[string]string, len(c.defaultHeaders)+len(req.Headers))
	for name, value := range c.defaultHeaders {
		setHeader(merged, name, value)
	}
	for name, value := range req.Headers {
		setHeader(merged, name, value)
	}
	return merged
}

// limiter returns the rate limiter for key, or nil when rate limiting is
// off. Limiters are created on first use per origin.
func (c *Client) limiter(key pool.Key) *rate.Limiter {
	if c.rateLimit <= 0 {
		return nil
	}
	c.limitMu.Lock()
	defer c.limitMu.Unlock()
	lim, ok := c.limiters[key]
	if !ok {
		burst := c.rateBurst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(c.rateLimit), burst)
		c.limiters[key] = lim
	}
	return lim
}

// backoffInterrupted maps a context that fired during retry backoff to the
// error the caller should see instead of the stale attempt error.
func (c *Client) backoffInterrupted(ctx context.Context, lastErr error, start time.Time) error {
	if ctx.Err() == context.Canceled {
		return &httperr.CancelledError{Stage: httperr.StagePending, Err: context.Canceled}
	}
	return &httperr.TimeoutError{Stage: httperr.StagePending, Elapsed: time.Since(start), Err: lastErr}
}

// mapAcquireError translates pool failures into the send's error surface.
// An acquire that lost to the request deadline is a timeout from the
// caller's point of view, not pool exhaustion; a configured acquire
// timeout that trips on its own stays a pool exhaustion error.
func mapAcquireError(err error, start time.Time) error {
	if errors.Is(err, pool.ErrClosed) {
		return &httperr.LifecycleError{Op: "send", State: "closing"}
	}
	var pe *httperr.PoolExhaustedError
	if errors.As(err, &pe) {
		switch {
		case errors.Is(err, context.Canceled):
			return &httperr.CancelledError{Stage: httperr.StageAcquiring, Err: err}
		case errors.Is(err, context.DeadlineExceeded):
			return &httperr.TimeoutError{Stage: httperr.StageAcquiring, Elapsed: time.Since(start), Err: err}
		}
	}
	return err
}

// retryable decides whether err may be retried for req. Only transport
// failures with no response bytes qualify, and only when repeating the
// request cannot duplicate a side effect: the method is idempotent, the
// caller attested idempotence, or no request bytes reached the wire.
func retryable(req *Request, err error) bool {
	var te *httperr.TransportError
	if !errors.As(err, &te) {
		return false
	}
	if te.Received {
		return false
	}
	if req.Idempotent || idempotentMethod(req.Method) {
		return true
	}
	return !te.Sent
}

func idempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD", "PUT", "DELETE", "OPTIONS", "TRACE":
		return true
	}
	return false
}

// backoffDelay computes the exponential backoff with full jitter for the
// given attempt number, starting at base and doubling up to the ceiling.
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		d = ceiling
	}
	if d <= 0 {
		return 0
	}
	return rand.N(d)
}

// hostHeader is the authority for the Host header: what the caller wrote,
// default ports and all.
func hostHeader(u *url.URL) string {
	return u.Host
}
