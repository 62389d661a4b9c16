package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastMonitor() *Monitor {
	m := NewMonitor()
	m.Interval = time.Millisecond
	m.MaxInterval = 5 * time.Millisecond
	m.Timeout = 250 * time.Millisecond
	return m
}

func TestAwaitReadySucceedsAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			// Simulate a server that is not accepting yet by hijacking
			// and dropping the connection.
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := fastMonitor().AwaitReady(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestAwaitReadyTimesOut(t *testing.T) {
	m := fastMonitor()
	m.Probe = func(ctx context.Context, url string) error {
		return assert.AnError
	}

	err := m.AwaitReady(context.Background(), "http://localhost:1/health")
	require.ErrorIs(t, err, errProbeTimeout)
}

func TestAwaitReadyHonorsCancellation(t *testing.T) {
	m := fastMonitor()
	m.Timeout = time.Hour
	m.Probe = func(ctx context.Context, url string) error {
		return assert.AnError
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := m.AwaitReady(ctx, "http://localhost:1/health")
	require.ErrorIs(t, err, context.Canceled)
}

func TestHTTPProbeTreatsServerErrorAsUnready(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.Error(t, httpProbe(context.Background(), srv.URL))
}

func TestHTTPProbeAcceptsNonOKResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.NoError(t, httpProbe(context.Background(), srv.URL))
}
