package stats

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickfetch/tickfetch/packages/httperr"
)

func TestRecorderCountsOutcomes(t *testing.T) {
	r := NewRecorder()

	r.Record("api.example.com", "GET", 200, 10*time.Millisecond, nil)
	r.Record("api.example.com", "GET", 500, 20*time.Millisecond, nil)
	r.Record("api.example.com", "POST", 0, 30*time.Millisecond, errors.New("reset"))
	r.Record("md.example.com", "GET", 0, time.Second, &httperr.TimeoutError{Stage: httperr.StageReceiving, Elapsed: time.Second})
	r.RecordRetry()
	r.RecordRetry()

	s := r.Summary()
	assert.Equal(t, int64(4), s.Total)
	assert.Equal(t, int64(2), s.Success, "HTTP errors still count as completed requests")
	assert.Equal(t, int64(2), s.Failures)
	assert.Equal(t, int64(1), s.Timeouts)
	assert.Equal(t, int64(2), s.Retries)
	assert.InDelta(t, 0.5, s.SuccessRate, 0.001)
}

func TestRecorderLatencyPercentiles(t *testing.T) {
	r := NewRecorder()
	for i := 1; i <= 100; i++ {
		r.Record("h", "GET", 200, time.Duration(i)*time.Millisecond, nil)
	}

	s := r.Summary()
	assert.LessOrEqual(t, s.P50, s.P95)
	assert.LessOrEqual(t, s.P95, s.P99)
	assert.LessOrEqual(t, s.P99, s.Max)
	assert.InDelta(t, 50*time.Millisecond, s.P50, float64(2*time.Millisecond))
	assert.InDelta(t, 100*time.Millisecond, s.Max, float64(2*time.Millisecond))
	assert.Greater(t, s.RPS, 0.0)
}

func TestRecorderPerHostBreakdown(t *testing.T) {
	r := NewRecorder()
	r.Record("a.example.com:443", "GET", 200, 5*time.Millisecond, nil)
	r.Record("a.example.com:443", "GET", 200, 15*time.Millisecond, nil)
	r.Record("b.example.com:443", "GET", 0, 5*time.Millisecond, errors.New("refused"))

	s := r.Summary()
	require.Len(t, s.Hosts, 2)

	a := s.Hosts["a.example.com:443"]
	require.NotNil(t, a)
	assert.Equal(t, int64(2), a.Total)
	assert.Equal(t, int64(2), a.Success)
	assert.Zero(t, a.Failures)

	b := s.Hosts["b.example.com:443"]
	require.NotNil(t, b)
	assert.Equal(t, int64(1), b.Failures)
}

func TestRecorderConcurrentUse(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Record("h.example.com", "GET", 200, time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(800), r.Summary().Total)
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var r *Recorder

	r.Record("h", "GET", 200, time.Millisecond, nil)
	r.RecordRetry()

	s := r.Summary()
	require.NotNil(t, s)
	assert.Zero(t, s.Total)
}
