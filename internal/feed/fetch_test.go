package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyCSV = "date,name\n2025-06-01,Salsa\n"

func TestFetchUsesETagCache(t *testing.T) {
	var hits, notModified int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			atomic.AddInt32(&notModified, 1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(tinyCSV))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Second)
	ctx := context.Background()

	body, err := f.Fetch(ctx, srv.URL+"/events.csv", "")
	require.NoError(t, err)
	assert.Equal(t, tinyCSV, string(body))

	body, err = f.Fetch(ctx, srv.URL+"/events.csv", "")
	require.NoError(t, err)
	assert.Equal(t, tinyCSV, string(body))

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&notModified))
}

func TestFetchSendsCacheBust(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query().Get("v"))
		_, _ = w.Write([]byte(tinyCSV))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Second)
	_, err := f.Fetch(context.Background(), srv.URL+"/events.csv", "1718000000")

	require.NoError(t, err)
	assert.Equal(t, "1718000000", gotQuery.Load())
}

func TestFetchErrorsWithoutStaleFallback(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(tinyCSV))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Second)
	_, err := f.Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)

	fail.Store(true)
	_, err = f.Fetch(context.Background(), srv.URL, "")
	assert.ErrorIs(t, err, ErrStatus)
}

func TestFetchEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Second)
	_, err := f.Fetch(context.Background(), srv.URL, "")

	assert.ErrorIs(t, err, ErrEmptyFeed)
}

func TestFetchLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.csv")
	require.NoError(t, os.WriteFile(path, []byte(tinyCSV), 0o600))

	f := NewFetcher(t.TempDir(), time.Second)

	body, err := f.Fetch(context.Background(), path, "ignored")
	require.NoError(t, err)
	assert.Equal(t, tinyCSV, string(body))

	body, err = f.Fetch(context.Background(), "file://"+path, "")
	require.NoError(t, err)
	assert.Equal(t, tinyCSV, string(body))

	_, err = f.Fetch(context.Background(), filepath.Join(dir, "missing.csv"), "")
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://raw.example.com/...(redacted)", redactURL("https://raw.example.com/a/b.csv?token=x"))
	assert.Equal(t, "feed://...(redacted)", redactURL("events.csv"))
}
