package archive

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickfetch/tickfetch/packages/wire"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore(t)

	ex := &Exchange{
		Method: "GET",
		URL:    "https://api.example.com/v1/ticks?symbol=AUDUSD",
		Status: 200,
		Headers: []wire.Header{
			{Name: "Content-Type", Value: "application/json"},
			{Name: "Set-Cookie", Value: "a=1"},
			{Name: "Set-Cookie", Value: "b=2"},
		},
		ResponseBody: []byte(`{"bid":0.6521}`),
		Elapsed:      42 * time.Millisecond,
		Attempts:     1,
	}
	require.NoError(t, s.Insert(ex))
	require.NotZero(t, ex.ID)
	require.False(t, ex.Timestamp.IsZero(), "Insert must stamp the exchange")

	got, err := s.Get(ex.ID)
	require.NoError(t, err)

	assert.Equal(t, ex.Method, got.Method)
	assert.Equal(t, ex.URL, got.URL)
	assert.Equal(t, ex.Status, got.Status)
	assert.Equal(t, ex.Headers, got.Headers, "duplicate headers keep their order")
	assert.Equal(t, ex.ResponseBody, got.ResponseBody)
	assert.Equal(t, ex.Elapsed, got.Elapsed)
	assert.Equal(t, 1, got.Attempts)
	assert.Empty(t, got.Error)
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)

	for i, url := range []string{"http://a.test/1", "http://a.test/2", "http://a.test/3"} {
		require.NoError(t, s.Insert(&Exchange{
			Method:   "GET",
			URL:      url,
			Status:   200,
			Attempts: i + 1,
		}))
	}

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "http://a.test/3", all[0].URL)
	assert.Equal(t, "http://a.test/1", all[2].URL)

	limited, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	n, err := s.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestFailedRequestStored(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Insert(&Exchange{
		Method:   "POST",
		URL:      "http://down.test/orders",
		Attempts: 4,
		Error:    "transport failure during dial: connection refused",
	}))

	all, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Zero(t, all[0].Status)
	assert.Equal(t, 4, all[0].Attempts)
	assert.Contains(t, all[0].Error, "connection refused")
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(999)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
