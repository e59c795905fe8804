// Package pool manages reusable transport connections keyed by origin.
//
// Connections are lent out exclusively: at most one request uses a
// connection at a time. The pool enforces a per-host cap and a global
// cap, queues acquirers FIFO per host key when saturated, hands released
// connections directly to same-key waiters, and closes connections that
// idle past their timeout, both lazily on acquire and from a background
// sweep. Draining stops new lends, fails queued waiters, and gives lent
// connections a grace period to come home before force-closing them.
package pool
