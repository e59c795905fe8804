package pool

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tickfetch/tickfetch/packages/httperr"
)

// ErrClosed is returned by Acquire once the pool has started draining.
var ErrClosed = errors.New("connection pool is closed")

// Config holds the pool limits. Zero values fall back to defaults.
type Config struct {
	// MaxPerHost caps connections per key, idle and lent combined.
	MaxPerHost int

	// MaxTotal caps connections across all keys.
	MaxTotal int

	// IdleTimeout is how long an idle connection may sit unused before
	// it is closed, both lazily on acquire and by the background sweep.
	IdleTimeout time.Duration

	// AcquireTimeout bounds how long Acquire waits for a connection.
	// Zero means wait until the context ends.
	AcquireTimeout time.Duration

	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration

	// TLS is applied to https connections by the default dialer.
	TLS *tls.Config

	// Dial opens transport connections. Defaults to DefaultDialer.
	Dial DialFunc

	Logger *zap.Logger
}

const (
	DefaultMaxPerHost  = 6
	DefaultMaxTotal    = 100
	DefaultIdleTimeout = 30 * time.Second
	DefaultDialTimeout = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxPerHost <= 0 {
		c.MaxPerHost = DefaultMaxPerHost
	}
	if c.MaxTotal <= 0 {
		c.MaxTotal = DefaultMaxTotal
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Dial == nil {
		c.Dial = DefaultDialer(c.TLS, c.DialTimeout)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// grant is what a queued waiter receives. A non-nil conn is a direct
// handoff of a released connection, already marked in-use. A nil conn
// means capacity freed up and the waiter should retry the acquire.
type grant struct {
	conn *Conn
}

type waiter struct {
	key Key
	ch  chan grant
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Idle    int
	InUse   int
	Waiting int

	// Hosts maps key strings to live connection counts.
	Hosts map[string]int
}

// Pool manages reusable connections grouped by origin key. Acquire lends
// a connection out exclusively; Release returns it. When a host group or
// the whole pool is at capacity, acquirers queue and are served in FIFO
// order per key, with released connections handed directly to the next
// same-key waiter.
type Pool struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	idle     map[Key][]*Conn
	live     map[Key]int
	total    int
	conns    map[*Conn]struct{}
	waiters  []*waiter
	draining bool
	closed   bool
	drained  chan struct{}
	nextID   uint64

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New creates a pool and starts its idle sweep goroutine. The pool opens
// no connections until the first Acquire.
func New(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:       cfg,
		log:       cfg.Logger,
		idle:      make(map[Key][]*Conn),
		live:      make(map[Key]int),
		conns:     make(map[*Conn]struct{}),
		nextID:    1,
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go p.sweep()
	p.log.Debug("connection pool started",
		zap.Int("max_per_host", cfg.MaxPerHost),
		zap.Int("max_total", cfg.MaxTotal),
		zap.Duration("idle_timeout", cfg.IdleTimeout))
	return p
}

// Acquire returns a connection for key, reusing an idle one when
// possible, dialing when under capacity, and otherwise waiting until a
// connection or slot frees up. Waiting ends with the context, or with
// AcquireTimeout when one is configured.
func (p *Pool) Acquire(ctx context.Context, key Key) (*Conn, error) {
	start := time.Now()

	var acquireTimer <-chan time.Time
	if p.cfg.AcquireTimeout > 0 {
		timer := time.NewTimer(p.cfg.AcquireTimeout)
		defer timer.Stop()
		acquireTimer = timer.C
	}

	woken := false
	p.mu.Lock()
	for {
		if p.closed || p.draining {
			p.mu.Unlock()
			return nil, ErrClosed
		}

		// Earlier waiters for this key keep their place in line; a
		// newcomer may only grab a connection when none are queued.
		if woken || !p.hasWaiterLocked(key) {
			if conn := p.idleConnLocked(key); conn != nil {
				conn.state = StateInUse
				p.mu.Unlock()
				return conn, nil
			}
			if p.live[key] < p.cfg.MaxPerHost && (p.total < p.cfg.MaxTotal || p.evictIdleLocked()) {
				return p.dialLocked(ctx, key, start)
			}
		}

		w := &waiter{key: key, ch: make(chan grant, 1)}
		if woken {
			// A woken waiter that lost the race goes back to the front.
			p.waiters = append([]*waiter{w}, p.waiters...)
		} else {
			p.waiters = append(p.waiters, w)
		}
		queued := len(p.waiters)
		p.mu.Unlock()

		p.log.Debug("waiting for connection",
			zap.String("host", key.String()),
			zap.Int("queued", queued))

		select {
		case g := <-w.ch:
			if g.conn != nil {
				return g.conn, nil
			}
			woken = true
			p.mu.Lock()

		case <-ctx.Done():
			p.abandon(w)
			return nil, &httperr.PoolExhaustedError{Host: key.String(), Waited: time.Since(start), Err: ctx.Err()}

		case <-acquireTimer:
			p.abandon(w)
			return nil, &httperr.PoolExhaustedError{Host: key.String(), Waited: time.Since(start)}
		}
	}
}

// Release returns a lent connection. An unhealthy connection is closed;
// a healthy one is handed to the next waiter for its key, or parked idle.
func (p *Pool) Release(conn *Conn, healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked(conn, healthy)
}

func (p *Pool) releaseLocked(conn *Conn, healthy bool) {
	if conn.state == StateClosed {
		return
	}
	if p.draining || p.closed {
		p.closeConnLocked(conn, "pool closing")
		return
	}
	if !healthy {
		p.closeConnLocked(conn, "unhealthy")
		return
	}
	if w := p.takeWaiterLocked(conn.key); w != nil {
		w.ch <- grant{conn: conn}
		return
	}
	conn.state = StateIdle
	conn.idleSince = time.Now()
	p.idle[conn.key] = append(p.idle[conn.key], conn)

	// An idle connection is evictable capacity for cross-key waiters.
	p.wakeLocked()
}

// Drain stops the pool: waiters fail, idle connections close, and lent
// connections get up to grace to come back before being force-closed.
// Drain is idempotent and safe to call concurrently.
func (p *Pool) Drain(grace time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if !p.draining {
		p.draining = true
		close(p.sweepStop)

		for _, w := range p.waiters {
			w.ch <- grant{}
		}
		p.waiters = nil

		for _, list := range p.idle {
			for _, conn := range list {
				p.closeConnLocked(conn, "drained")
			}
		}
		p.idle = make(map[Key][]*Conn)
	}
	var drained chan struct{}
	if p.total > 0 {
		if p.drained == nil {
			p.drained = make(chan struct{})
		}
		drained = p.drained
	}
	p.mu.Unlock()

	if drained != nil {
		select {
		case <-drained:
		case <-time.After(grace):
		}
	}

	p.mu.Lock()
	for conn := range p.conns {
		conn.state = StateClosed
		conn.raw.Close()
		delete(p.conns, conn)
		p.decrementLocked(conn.key)
		p.log.Warn("connection force closed",
			zap.Uint64("conn", conn.id),
			zap.String("host", conn.key.String()))
	}
	if p.drained != nil {
		close(p.drained)
		p.drained = nil
	}
	p.closed = true
	p.mu.Unlock()

	<-p.sweepDone
	p.log.Debug("connection pool drained")
}

// Stats reports current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	idle := 0
	for _, list := range p.idle {
		idle += len(list)
	}
	hosts := make(map[string]int, len(p.live))
	for key, n := range p.live {
		hosts[key.String()] = n
	}
	return Stats{
		Idle:    idle,
		InUse:   p.total - idle,
		Waiting: len(p.waiters),
		Hosts:   hosts,
	}
}

// dialLocked reserves a slot, drops the lock for the dial itself, and
// rolls the reservation back on failure. Called with the mutex held;
// returns with it released.
func (p *Pool) dialLocked(ctx context.Context, key Key, start time.Time) (*Conn, error) {
	p.live[key]++
	p.total++
	id := p.nextID
	p.nextID++
	p.mu.Unlock()

	raw, err := p.cfg.Dial(ctx, key)
	if err != nil {
		p.mu.Lock()
		p.decrementLocked(key)
		if p.draining || p.closed {
			p.checkDrainedLocked()
		} else {
			p.wakeLocked()
		}
		p.mu.Unlock()

		switch ctx.Err() {
		case context.Canceled:
			return nil, &httperr.CancelledError{Stage: httperr.StageAcquiring, Err: context.Canceled}
		case context.DeadlineExceeded:
			return nil, &httperr.TimeoutError{Stage: httperr.StageAcquiring, Elapsed: time.Since(start), Err: err}
		}
		return nil, &httperr.TransportError{Op: "dial " + key.String(), Err: err}
	}

	conn := newConn(id, key, raw)
	p.mu.Lock()
	if p.draining || p.closed {
		conn.state = StateClosed
		p.decrementLocked(key)
		p.checkDrainedLocked()
		p.mu.Unlock()
		raw.Close()
		return nil, ErrClosed
	}
	p.conns[conn] = struct{}{}
	p.mu.Unlock()

	p.log.Debug("connection opened",
		zap.Uint64("conn", id),
		zap.String("host", key.String()),
		zap.Duration("dial", time.Since(start)))
	return conn, nil
}

// idleConnLocked pops the most recently parked connection for key,
// closing any that idled past the timeout on the way.
func (p *Pool) idleConnLocked(key Key) *Conn {
	now := time.Now()
	for {
		list := p.idle[key]
		n := len(list)
		if n == 0 {
			delete(p.idle, key)
			return nil
		}
		conn := list[n-1]
		p.idle[key] = list[:n-1]
		if conn.expired(p.cfg.IdleTimeout, now) {
			p.closeConnLocked(conn, "idle timeout")
			continue
		}
		return conn
	}
}

// evictIdleLocked closes the oldest idle connection of any key to make
// room under MaxTotal. Reports whether a slot was freed.
func (p *Pool) evictIdleLocked() bool {
	var oldest *Conn
	var oldestKey Key
	for key, list := range p.idle {
		if len(list) == 0 {
			continue
		}
		if oldest == nil || list[0].idleSince.Before(oldest.idleSince) {
			oldest = list[0]
			oldestKey = key
		}
	}
	if oldest == nil {
		return false
	}
	p.idle[oldestKey] = p.idle[oldestKey][1:]
	p.closeConnLocked(oldest, "evicted for capacity")
	return true
}

func (p *Pool) closeConnLocked(conn *Conn, reason string) {
	if conn.state == StateClosed {
		return
	}
	conn.state = StateClosed
	delete(p.conns, conn)
	p.decrementLocked(conn.key)
	conn.raw.Close()
	p.log.Debug("connection closed",
		zap.Uint64("conn", conn.id),
		zap.String("host", conn.key.String()),
		zap.String("reason", reason),
		zap.Duration("age", time.Since(conn.createdAt)))

	if p.draining || p.closed {
		p.checkDrainedLocked()
		return
	}
	p.wakeLocked()
}

func (p *Pool) decrementLocked(key Key) {
	p.live[key]--
	if p.live[key] <= 0 {
		delete(p.live, key)
	}
	p.total--
}

func (p *Pool) checkDrainedLocked() {
	if p.draining && p.total == 0 && p.drained != nil {
		close(p.drained)
		p.drained = nil
	}
}

// wakeLocked hands a capacity grant to the first waiter that could act on
// it. Scanning in queue order keeps per-key FIFO intact.
func (p *Pool) wakeLocked() {
	if p.total >= p.cfg.MaxTotal && !p.hasIdleLocked() {
		return
	}
	for i, w := range p.waiters {
		if p.live[w.key] < p.cfg.MaxPerHost || len(p.idle[w.key]) > 0 {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			w.ch <- grant{}
			return
		}
	}
}

func (p *Pool) takeWaiterLocked(key Key) *waiter {
	for i, w := range p.waiters {
		if w.key == key {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return w
		}
	}
	return nil
}

func (p *Pool) hasWaiterLocked(key Key) bool {
	for _, w := range p.waiters {
		if w.key == key {
			return true
		}
	}
	return false
}

func (p *Pool) hasIdleLocked() bool {
	for _, list := range p.idle {
		if len(list) > 0 {
			return true
		}
	}
	return false
}

// abandon removes a waiter whose acquire gave up. If a grant was already
// delivered, it is taken back so neither a connection nor a wakeup is
// lost.
func (p *Pool) abandon(w *waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cand := range p.waiters {
		if cand == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
	select {
	case g := <-w.ch:
		if g.conn != nil {
			p.releaseLocked(g.conn, true)
		} else if !p.draining && !p.closed {
			p.wakeLocked()
		}
	default:
	}
}

// sweep closes idle connections that outlive the idle timeout, so unused
// keys do not pin sockets until the next acquire touches them.
func (p *Pool) sweep() {
	defer close(p.sweepDone)

	interval := p.cfg.IdleTimeout / 2
	if interval <= 0 {
		interval = DefaultIdleTimeout / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.sweepStop:
			return
		case <-ticker.C:
			p.expireIdle()
		}
	}
}

func (p *Pool) expireIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.draining {
		return
	}
	now := time.Now()
	for key, list := range p.idle {
		kept := list[:0]
		for _, conn := range list {
			if conn.expired(p.cfg.IdleTimeout, now) {
				p.closeConnLocked(conn, "idle timeout")
			} else {
				kept = append(kept, conn)
			}
		}
		if len(kept) == 0 {
			delete(p.idle, key)
		} else {
			p.idle[key] = kept
		}
	}
}
