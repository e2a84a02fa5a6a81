package importer_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/flashdeck/internal/importer"
)

func newTestFetcher(maxBytes int64) *importer.Fetcher {
	return importer.NewFetcher(importer.FetchConfig{
		Timeout:    2 * time.Second,
		Attempts:   3,
		MaxBytes:   maxBytes,
		RetryDelay: time.Millisecond,
	})
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("image")) //nolint:errcheck
	}))
	defer srv.Close()

	body, err := newTestFetcher(1024).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "image", string(body))
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchStopsReadingAtLimit(t *testing.T) {
	var hits atomic.Int32
	chunk := bytes.Repeat([]byte("x"), 64<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		for range 64 {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	_, err := newTestFetcher(1024).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
	assert.Equal(t, int32(1), hits.Load(), "oversized bodies are not retried")
}

func TestFetchAcceptsBodyAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 1024)) //nolint:errcheck
	}))
	defer srv.Close()

	body, err := newTestFetcher(1024).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, body, 1024)
}

func TestFetchClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestFetcher(1024).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code: 404")
	assert.Equal(t, int32(1), hits.Load())
}
