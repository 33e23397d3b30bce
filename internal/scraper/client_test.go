package scraper

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"grocery-price/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchDecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "agent/1.0", r.Header.Get("User-Agent"))
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write([]byte("<html>ok</html>"))
		zw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := NewClient("agent/1.0", time.Second, nil)
	body, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", body)
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("agent", time.Second, nil)
	_, err := c.FetchWithRetry(context.Background(), srv.URL, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	c := NewClient("agent", time.Second, nil)
	body, err := c.FetchWithRetry(context.Background(), srv.URL, 1)
	require.NoError(t, err)
	assert.Equal(t, "recovered", body)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClientHonoursLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	limiter := ratelimit.New(1, time.Hour, 20*time.Millisecond)
	c := NewClient("agent", time.Second, limiter)

	var out map[string]any
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, nil, map[string]any{"a": 1}, &out))

	err := c.PostJSON(context.Background(), srv.URL, nil, map[string]any{"a": 1}, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ratelimit.ErrTimeout)
}
