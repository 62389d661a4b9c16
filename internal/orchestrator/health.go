package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getsolo/solo/internal/logger"
)

// errProbeTimeout signals that the health deadline elapsed; the manager
// maps it to *HealthCheckTimeoutError with the backend attached.
var errProbeTimeout = errors.New("health probe deadline exceeded")

// ProbeFunc checks one endpoint for readiness. A nil return means the
// backend answered and is ready to serve.
type ProbeFunc func(ctx context.Context, url string) error

// Monitor polls a backend's health endpoint until it answers, the
// deadline passes, or the context is cancelled. Polling backs off
// exponentially so slow model loads are not hammered.
type Monitor struct {
	Interval    time.Duration // initial poll interval
	MaxInterval time.Duration // backoff cap
	Timeout     time.Duration // overall readiness deadline
	Probe       ProbeFunc
}

// NewMonitor returns a monitor with the default HTTP probe and timing.
func NewMonitor() *Monitor {
	return &Monitor{
		Interval:    500 * time.Millisecond,
		MaxInterval: 5 * time.Second,
		Timeout:     60 * time.Second,
		Probe:       httpProbe,
	}
}

// AwaitReady blocks until the endpoint is healthy. It returns
// errProbeTimeout when the deadline elapses and ctx.Err() when the
// caller cancels; probe failures before the deadline are retried, not
// returned.
func (m *Monitor) AwaitReady(ctx context.Context, url string) error {
	deadline := time.NewTimer(m.Timeout)
	defer deadline.Stop()

	interval := m.Interval
	for attempt := 1; ; attempt++ {
		if err := m.Probe(ctx, url); err == nil {
			logger.Debug("Health probe succeeded after %d attempt(s): %s", attempt, url)
			return nil
		} else {
			logger.Debug("Health probe attempt %d failed: %v", attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return errProbeTimeout
		case <-time.After(interval):
		}

		interval *= 2
		if interval > m.MaxInterval {
			interval = m.MaxInterval
		}
	}
}

// httpProbe is the default probe: a GET that counts any non-server-error
// response as ready. Backends answer their health path with 200 once
// the model is loaded; 404 and friends still prove the server is up.
func httpProbe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("health endpoint returned %s", resp.Status)
	}
	return nil
}
