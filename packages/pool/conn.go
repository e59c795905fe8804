package pool

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"time"
)

// State is the lifecycle position of a pooled connection.
type State int

const (
	StateIdle State = iota
	StateInUse
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInUse:
		return "in-use"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// DialFunc opens a raw transport connection for a key. Tests substitute
// in-memory pipes through this hook.
type DialFunc func(ctx context.Context, key Key) (net.Conn, error)

// DefaultDialer returns a DialFunc that opens TCP connections, wrapping
// them in TLS for https keys. The server name for certificate checks
// defaults to the key's host.
func DefaultDialer(tlsCfg *tls.Config, timeout time.Duration) DialFunc {
	return func(ctx context.Context, key Key) (net.Conn, error) {
		d := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
		raw, err := d.DialContext(ctx, "tcp", key.Address())
		if err != nil {
			return nil, err
		}
		if key.Scheme != "https" {
			return raw, nil
		}
		cfg := tlsCfg
		if cfg == nil {
			cfg = &tls.Config{}
		}
		cfg = cfg.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = key.Host
		}
		tc := tls.Client(raw, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, err
		}
		return tc, nil
	}
}

// Conn is one pooled connection. It carries a persistent buffered reader:
// bytes read ahead of a response parse belong to the connection and must
// survive the connection going idle and being lent out again.
//
// The state field is guarded by the pool mutex.
type Conn struct {
	id        uint64
	key       Key
	raw       net.Conn
	br        *bufio.Reader
	state     State
	createdAt time.Time
	idleSince time.Time
}

func newConn(id uint64, key Key, raw net.Conn) *Conn {
	return &Conn{
		id:        id,
		key:       key,
		raw:       raw,
		br:        bufio.NewReader(raw),
		state:     StateInUse,
		createdAt: time.Now(),
	}
}

// ID returns the pool-assigned identifier, used to correlate log events.
func (c *Conn) ID() uint64 { return c.id }

// Key returns the origin this connection belongs to.
func (c *Conn) Key() Key { return c.key }

func (c *Conn) Write(p []byte) (int, error) { return c.raw.Write(p) }

// Reader returns the connection's persistent buffered reader.
func (c *Conn) Reader() *bufio.Reader { return c.br }

func (c *Conn) SetReadDeadline(t time.Time) error { return c.raw.SetReadDeadline(t) }

func (c *Conn) SetWriteDeadline(t time.Time) error { return c.raw.SetWriteDeadline(t) }

func (c *Conn) expired(timeout time.Duration, now time.Time) bool {
	return timeout > 0 && now.Sub(c.idleSince) >= timeout
}
