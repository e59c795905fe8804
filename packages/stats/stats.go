// Package stats aggregates latency and outcome metrics for HTTP requests.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/tickfetch/tickfetch/packages/httperr"
)

// Recorder collects request outcomes and latencies. All methods are safe
// for concurrent use, and every method is a no-op on a nil receiver so
// callers can thread an optional recorder through without nil checks.
type Recorder struct {
	mu sync.RWMutex

	total    atomic.Int64
	success  atomic.Int64
	failures atomic.Int64
	timeouts atomic.Int64
	retries  atomic.Int64

	// Latency histogram in microseconds for precision.
	histogram *hdrhistogram.Histogram

	hosts   map[string]*hostMetrics
	started time.Time
}

type hostMetrics struct {
	total    atomic.Int64
	success  atomic.Int64
	failures atomic.Int64

	mu        sync.Mutex
	histogram *hdrhistogram.Histogram
}

// Summary is a point-in-time aggregation of everything recorded.
type Summary struct {
	Duration time.Duration

	Total    int64
	Success  int64
	Failures int64
	Timeouts int64
	Retries  int64

	RPS         float64
	SuccessRate float64

	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration

	Hosts map[string]*HostSummary
}

// HostSummary is the per-host slice of a Summary.
type HostSummary struct {
	Total    int64
	Success  int64
	Failures int64
	P50      time.Duration
	P95      time.Duration
	P99      time.Duration
}

// NewRecorder creates an empty recorder with its clock started.
func NewRecorder() *Recorder {
	return &Recorder{
		// 1us to 60s range, 3 significant digits.
		histogram: hdrhistogram.New(1, 60_000_000, 3),
		hosts:     make(map[string]*hostMetrics),
		started:   time.Now(),
	}
}

// Record notes the outcome of one request. A request counts as a success
// whenever an HTTP response came back, regardless of status code; err
// carries the typed failure otherwise.
func (r *Recorder) Record(host, method string, status int, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.total.Add(1)
	if err != nil {
		r.failures.Add(1)
		if httperr.IsTimeout(err) {
			r.timeouts.Add(1)
		}
	} else {
		r.success.Add(1)
	}

	latencyUs := clampLatency(elapsed)
	r.mu.Lock()
	_ = r.histogram.RecordValue(latencyUs)
	r.mu.Unlock()

	if host != "" {
		r.recordHost(host, latencyUs, err)
	}
}

// RecordRetry notes a single retry attempt.
func (r *Recorder) RecordRetry() {
	if r == nil {
		return
	}
	r.retries.Add(1)
}

func (r *Recorder) recordHost(host string, latencyUs int64, err error) {
	r.mu.Lock()
	hm, ok := r.hosts[host]
	if !ok {
		hm = &hostMetrics{histogram: hdrhistogram.New(1, 60_000_000, 3)}
		r.hosts[host] = hm
	}
	r.mu.Unlock()

	hm.total.Add(1)
	if err != nil {
		hm.failures.Add(1)
	} else {
		hm.success.Add(1)
	}
	hm.mu.Lock()
	_ = hm.histogram.RecordValue(latencyUs)
	hm.mu.Unlock()
}

// Summary aggregates everything recorded so far.
func (r *Recorder) Summary() *Summary {
	if r == nil {
		return &Summary{Hosts: map[string]*HostSummary{}}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := r.total.Load()
	s := &Summary{
		Duration: time.Since(r.started),
		Total:    total,
		Success:  r.success.Load(),
		Failures: r.failures.Load(),
		Timeouts: r.timeouts.Load(),
		Retries:  r.retries.Load(),
		P50:      time.Duration(r.histogram.ValueAtQuantile(50)) * time.Microsecond,
		P95:      time.Duration(r.histogram.ValueAtQuantile(95)) * time.Microsecond,
		P99:      time.Duration(r.histogram.ValueAtQuantile(99)) * time.Microsecond,
		Min:      time.Duration(r.histogram.Min()) * time.Microsecond,
		Max:      time.Duration(r.histogram.Max()) * time.Microsecond,
		Mean:     time.Duration(int64(r.histogram.Mean())) * time.Microsecond,
		Hosts:    make(map[string]*HostSummary, len(r.hosts)),
	}
	if s.Duration > 0 {
		s.RPS = float64(total) / s.Duration.Seconds()
	}
	if total > 0 {
		s.SuccessRate = float64(s.Success) / float64(total)
	}

	for host, hm := range r.hosts {
		hm.mu.Lock()
		s.Hosts[host] = &HostSummary{
			Total:    hm.total.Load(),
			Success:  hm.success.Load(),
			Failures: hm.failures.Load(),
			P50:      time.Duration(hm.histogram.ValueAtQuantile(50)) * time.Microsecond,
			P95:      time.Duration(hm.histogram.ValueAtQuantile(95)) * time.Microsecond,
			P99:      time.Duration(hm.histogram.ValueAtQuantile(99)) * time.Microsecond,
		}
		hm.mu.Unlock()
	}
	return s
}

func clampLatency(d time.Duration) int64 {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	if us > 60_000_000 {
		us = 60_000_000
	}
	return us
}
