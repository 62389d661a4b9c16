package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getsolo/solo/internal/catalog"
	"github.com/getsolo/solo/internal/container"
)

func newTestManager(t *testing.T) (*Manager, *container.FakeRuntime) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	fake := container.NewFakeRuntime()
	m := NewManager(fake, catalog.NewDefault(), cpuProfile())
	m.ensureImage = func(ctx context.Context, image string) error { return nil }
	m.resolver.getenv = func(string) string { return "" }
	m.monitor = fastMonitor()
	m.monitor.Probe = func(ctx context.Context, url string) error { return nil }
	return m, fake
}

func TestStartAndStop(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	rec, err := m.Start(ctx, "ollama", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, StateRunning, rec.State)
	assert.Equal(t, "llama3.2:1b", rec.Model)
	assert.Equal(t, 11434, rec.Port)
	assert.NotEmpty(t, rec.InstanceID)
	assert.Equal(t, 1, fake.Count())

	spec := fake.Launched[0]
	assert.Equal(t, "solo-ollama", spec.Name)
	assert.Equal(t, "ollama", spec.Labels[container.LabelBackend])
	assert.Equal(t, rec.InstanceID, spec.Labels[container.LabelInstanceID])
	assert.Equal(t, "11434", spec.Labels[container.LabelPort])

	require.NoError(t, m.Stop(ctx, "ollama"))
	assert.Equal(t, 0, fake.Count())
}

func TestStopNotRunning(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Stop(context.Background(), "ollama")
	var nerr *NotRunningError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "ollama", nerr.Backend)
}

func TestStopUnknownBackend(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Stop(context.Background(), "nope")
	var uerr *catalog.UnknownBackendError
	require.ErrorAs(t, err, &uerr)
}

func TestStartIsIdempotent(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	first, err := m.Start(ctx, "ollama", Overrides{})
	require.NoError(t, err)

	second, err := m.Start(ctx, "ollama", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, first.InstanceID, second.InstanceID, "matching config must reuse the instance")
	assert.Len(t, fake.Launched, 1)
}

func TestStartReplacesOnConfigChange(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	first, err := m.Start(ctx, "ollama", Overrides{})
	require.NoError(t, err)

	second, err := m.Start(ctx, "ollama", Overrides{Model: "qwen2.5:3b"})
	require.NoError(t, err)

	assert.NotEqual(t, first.InstanceID, second.InstanceID)
	assert.Equal(t, "qwen2.5:3b", second.Model)
	assert.Len(t, fake.Launched, 2)
	assert.Equal(t, 1, fake.Count(), "old container must be terminated")
}

func TestPortConflict(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "ollama", Overrides{Port: 9000})
	require.NoError(t, err)

	_, err = m.Start(ctx, "llamacpp", Overrides{Port: 9000})
	var perr *PortConflictError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 9000, perr.Port)
	assert.Equal(t, "ollama", perr.Backend)
}

func TestLaunchFailureCleansRegistry(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	fake.LaunchErr = assert.AnError

	_, err := m.Start(ctx, "ollama", Overrides{})
	var lerr *ContainerLaunchError
	require.ErrorAs(t, err, &lerr)
	require.ErrorIs(t, err, assert.AnError)

	// The failed reservation must not block a retry.
	_, err = m.Start(ctx, "ollama", Overrides{})
	require.NoError(t, err)
}

func TestHealthTimeoutLeavesContainerForDiagnosis(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	m.monitor.Probe = func(ctx context.Context, url string) error { return assert.AnError }
	m.monitor.Timeout = 10 * time.Millisecond

	_, err := m.Start(ctx, "ollama", Overrides{})
	var herr *HealthCheckTimeoutError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, 1, fake.Count(), "unhealthy container is kept for log inspection")

	rec := m.registry.Get("ollama")
	require.NotNil(t, rec)
	assert.Equal(t, StateUnhealthy, rec.State)

	// Serving again replaces the unhealthy instance.
	m.monitor.Probe = func(ctx context.Context, url string) error { return nil }
	m.monitor.Timeout = time.Second

	rec, err = m.Start(ctx, "ollama", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, rec.State)
	assert.Equal(t, 1, fake.Count())
}

func TestStatusDetectsCrash(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	rec, err := m.Start(ctx, "ollama", Overrides{})
	require.NoError(t, err)

	fake.Crash(rec.ContainerID, 137)

	got, err := m.Status(ctx, "ollama")
	require.NoError(t, err)
	assert.Equal(t, StateUnhealthy, got.State)
	assert.Contains(t, got.Error, "137")

	// The crashed record was dropped; a second status query reports
	// the backend as not running.
	_, err = m.Status(ctx, "ollama")
	var nerr *NotRunningError
	require.ErrorAs(t, err, &nerr)
}

func TestRestoreRebuildsRegistry(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	fake := container.NewFakeRuntime()
	first := NewManager(fake, catalog.NewDefault(), cpuProfile())
	first.ensureImage = func(ctx context.Context, image string) error { return nil }
	first.resolver.getenv = func(string) string { return "" }
	first.monitor = fastMonitor()
	first.monitor.Probe = func(ctx context.Context, url string) error { return nil }

	ctx := context.Background()
	started, err := first.Start(ctx, "ollama", Overrides{})
	require.NoError(t, err)

	// A fresh manager, as every CLI invocation gets, sees nothing until
	// it restores from the engine.
	second := NewManager(fake, catalog.NewDefault(), cpuProfile())
	require.NoError(t, second.Restore(ctx))

	rec, err := second.Status(ctx, "ollama")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, rec.State)
	assert.Equal(t, started.InstanceID, rec.InstanceID)
	assert.Equal(t, started.Port, rec.Port)
}

func TestStopAll(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "ollama", Overrides{})
	require.NoError(t, err)
	_, err = m.Start(ctx, "llamacpp", Overrides{})
	require.NoError(t, err)
	require.Equal(t, 2, fake.Count())

	require.NoError(t, m.StopAll(ctx))
	assert.Equal(t, 0, fake.Count())
	assert.Empty(t, m.List(ctx))
}

func TestStopAllContinuesPastFailure(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "llamacpp", Overrides{})
	require.NoError(t, err)
	_, err = m.Start(ctx, "ollama", Overrides{})
	require.NoError(t, err)

	// StopAll walks backends in id order, so llamacpp is hit by the
	// scripted failure and ollama must still be stopped.
	fake.TerminateErr = assert.AnError

	err = m.StopAll(ctx)
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "llamacpp")

	assert.Equal(t, 1, fake.Count())
	records := m.registry.All()
	require.Len(t, records, 1)
	assert.Equal(t, "llamacpp", records[0].Backend,
		"the backend whose stop failed keeps its record")
}

func TestCancelDuringStartupTearsDown(t *testing.T) {
	m, fake := newTestManager(t)

	m.monitor.Probe = func(ctx context.Context, url string) error { return assert.AnError }
	m.monitor.Timeout = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Start(ctx, "ollama", Overrides{})
		done <- err
	}()

	// Let the container land before interrupting the health wait.
	require.Eventually(t, func() bool { return fake.Count() == 1 },
		time.Second, time.Millisecond)
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fake.Count(), "interrupted startup must not leak its container")

	_, err = m.Status(context.Background(), "ollama")
	var nerr *NotRunningError
	require.ErrorAs(t, err, &nerr)
}

func TestStopBackendRemovedFromCatalog(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	fake := container.NewFakeRuntime()
	ctx := context.Background()

	// A container left behind by a backend id the catalog no longer
	// carries, as after an external registration was removed.
	_, err := fake.Launch(ctx, &container.LaunchSpec{
		Name:  "solo-legacy",
		Image: "legacy:latest",
		Labels: map[string]string{
			container.LabelBackend:    "legacy",
			container.LabelModel:      "old-model",
			container.LabelInstanceID: "legacy-instance",
			container.LabelPort:       "7000",
		},
	})
	require.NoError(t, err)

	m := NewManager(fake, catalog.NewDefault(), cpuProfile())
	require.NoError(t, m.Restore(ctx))

	require.NoError(t, m.Stop(ctx, "legacy"))
	assert.Equal(t, 0, fake.Count())
}

func TestStatusReturnsIndependentCopy(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "ollama", Overrides{})
	require.NoError(t, err)

	got, err := m.Status(ctx, "ollama")
	require.NoError(t, err)
	got.State = StateStopped
	got.Error = "scribbled by the caller"

	fresh := m.registry.Get("ollama")
	require.NotNil(t, fresh)
	assert.Equal(t, StateRunning, fresh.State)
	assert.Empty(t, fresh.Error)
}

func TestConcurrentServeAndStatus(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "ollama", Overrides{})
	require.NoError(t, err)

	// Hold the second backend in health-checking while readers hammer
	// the registry; the race detector flags any unlocked mutation.
	release := make(chan struct{})
	m.monitor.Probe = func(ctx context.Context, url string) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.monitor.Timeout = time.Minute

	done := make(chan error, 1)
	go func() {
		_, err := m.Start(ctx, "llamacpp", Overrides{})
		done <- err
	}()

	deadline := time.After(50 * time.Millisecond)
reads:
	for {
		select {
		case <-deadline:
			break reads
		default:
			m.List(ctx)
			if rec, err := m.Status(ctx, "llamacpp"); err == nil {
				assert.NotEqual(t, StateStopped, rec.State)
			}
		}
	}

	close(release)
	require.NoError(t, <-done)

	rec, err := m.Status(ctx, "llamacpp")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, rec.State)
}

func TestStartCreatesBindMountSources(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "llamacpp", Overrides{})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(os.Getenv("HOME"), ".cache", "llama.cpp"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
