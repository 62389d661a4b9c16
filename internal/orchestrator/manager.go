package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/getsolo/solo/internal/catalog"
	"github.com/getsolo/solo/internal/container"
	"github.com/getsolo/solo/internal/devices"
	"github.com/getsolo/solo/internal/hardware"
	"github.com/getsolo/solo/internal/logger"
)

// stopGrace is how long a backend gets to shut down cleanly before the
// engine kills it.
const stopGrace = 10 * time.Second

// Manager drives backend instances through their lifecycle. It owns the
// registry, resolves launches, enforces port exclusivity, and keeps the
// registry consistent with the container engine.
//
// The manager is rebuilt on every CLI invocation; Restore repopulates
// it from labeled containers before any operation runs.
type Manager struct {
	runtime  container.Runtime
	catalog  *catalog.Catalog
	profile  *hardware.Profile
	resolver *Resolver
	monitor  *Monitor
	registry *Registry

	// ensureImage is swappable for tests; the default pulls through the
	// docker CLI with progress on stderr.
	ensureImage func(ctx context.Context, image string) error
}

// NewManager builds a manager over a container runtime, catalog, and
// detected hardware profile.
func NewManager(rt container.Runtime, cat *catalog.Catalog, profile *hardware.Profile) *Manager {
	return &Manager{
		runtime:  rt,
		catalog:  cat,
		profile:  profile,
		resolver: NewResolver(cat),
		monitor:  NewMonitor(),
		registry: NewRegistry(),
		ensureImage: func(ctx context.Context, image string) error {
			return container.EnsureImage(ctx, image, os.Stderr)
		},
	}
}

// SetHealthTimeout overrides how long Start waits for a backend to
// become healthy.
func (m *Manager) SetHealthTimeout(d time.Duration) {
	m.monitor.Timeout = d
}

// Restore rebuilds the registry from solo-labeled containers on the
// engine. Running containers are adopted as Running; present but
// stopped containers are adopted as Unhealthy so status surfaces them
// and a subsequent serve replaces them.
func (m *Manager) Restore(ctx context.Context) error {
	found, err := m.runtime.Discover(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover containers: %w", err)
	}

	for _, d := range found {
		rec := &Record{
			InstanceID:  d.InstanceID,
			Backend:     d.Backend,
			Model:       d.Model,
			Port:        d.Port,
			ContainerID: d.ContainerID,
			Mode:        devices.Mode(d.Mode),
			State:       StateRunning,
			StartedAt:   d.StartedAt,
		}
		if !d.Running {
			rec.State = StateUnhealthy
			rec.Error = "container is not running"
		}
		if err := m.registry.Reserve(rec); err != nil {
			// Two stray containers on one port; adopt the first and
			// leave the rest to manual cleanup.
			logger.Warn("Skipping container %s for backend %s: %v", d.ContainerID[:12], d.Backend, err)
			continue
		}
		logger.Debug("Restored backend %s (state %s, port %d)", d.Backend, rec.State, d.Port)
	}
	return nil
}

// Start launches a backend, waits until it is healthy, and returns its
// record.
//
// Start is idempotent: when the backend is already running with the
// same model and port it is reused untouched. A running instance with a
// different model or port, or an unhealthy one, is terminated and
// replaced.
func (m *Manager) Start(ctx context.Context, backendID string, opts Overrides) (*Record, error) {
	plan, err := m.resolver.Resolve(backendID, m.profile, opts)
	if err != nil {
		return nil, err
	}

	if existing := m.registry.Get(backendID); existing != nil {
		reused, err := m.reconcileExisting(ctx, existing, plan)
		if err != nil {
			return nil, err
		}
		if reused != nil {
			return reused, nil
		}
	}

	if holder := m.registry.ByPort(plan.Port); holder != nil && holder.Backend != backendID {
		return nil, &PortConflictError{Port: plan.Port, Backend: holder.Backend}
	}

	rec := &Record{
		InstanceID: uuid.NewString(),
		Backend:    backendID,
		Model:      plan.Model,
		Port:       plan.Port,
		Mode:       plan.Mode,
		State:      StatePlanned,
	}
	if err := m.registry.Reserve(rec); err != nil {
		return nil, err
	}

	if err := m.ensureImage(ctx, plan.Image); err != nil {
		m.registry.Delete(backendID)
		return nil, &ContainerLaunchError{Backend: backendID, Err: err}
	}

	if err := ensureMountSources(plan.Mounts); err != nil {
		m.registry.Delete(backendID)
		return nil, &ContainerLaunchError{Backend: backendID, Err: err}
	}

	rec.State = StateStarting
	m.publish(rec)
	logger.Info("Starting backend %s (model %s, port %d, %s hardware)",
		backendID, plan.Model, plan.Port, plan.Mode)

	containerID, err := m.runtime.Launch(ctx, launchSpec(plan, rec))
	if err != nil {
		m.registry.Delete(backendID)
		return nil, &ContainerLaunchError{Backend: backendID, Err: err}
	}
	rec.ContainerID = containerID
	rec.State = StateHealthChecking
	m.publish(rec)

	if err := m.monitor.AwaitReady(ctx, plan.HealthURL); err != nil {
		if errors.Is(err, errProbeTimeout) {
			// Leave the container in place for diagnosis; the record
			// stays unhealthy until the user stops or replaces it.
			rec.State = StateUnhealthy
			rec.Error = fmt.Sprintf("health check timed out after %s", m.monitor.Timeout)
			m.publish(rec)
			return nil, &HealthCheckTimeoutError{Backend: backendID, Timeout: m.monitor.Timeout}
		}
		// User cancellation mid-startup: tear down so nothing leaks.
		m.terminateQuietly(rec)
		m.registry.Delete(backendID)
		return nil, err
	}

	rec.State = StateRunning
	rec.StartedAt = time.Now()
	m.publish(rec)
	logger.Info("Backend %s is ready on port %d", backendID, plan.Port)

	return rec, nil
}

// publish pushes the working copy's current state into the registry
// under its lock. Start mutates its private copy and publishes each
// transition, so readers never see a record mid-write.
func (m *Manager) publish(rec *Record) {
	m.registry.Update(rec.Backend, func(r *Record) { *r = *rec })
}

// ensureMountSources creates missing bind-mount directories right
// before launch so Docker does not create them root-owned. Named
// volumes are the engine's to manage.
func ensureMountSources(mounts []container.Mount) error {
	for _, mnt := range mounts {
		if mnt.Volume {
			continue
		}
		if err := os.MkdirAll(mnt.Source, 0o755); err != nil {
			return fmt.Errorf("failed to create mount source %s: %w", mnt.Source, err)
		}
	}
	return nil
}

// reconcileExisting decides what to do with a pre-existing record when
// the same backend is served again. It returns a non-nil record when
// the existing instance is reused as-is.
func (m *Manager) reconcileExisting(ctx context.Context, existing *Record, plan *LaunchPlan) (*Record, error) {
	if existing.State == StateRunning {
		state, err := m.runtime.Inspect(ctx, existing.ContainerID)
		if err == nil && state.Running &&
			existing.Model == plan.Model && existing.Port == plan.Port {
			logger.Info("Backend %s already running with requested configuration", existing.Backend)
			return existing, nil
		}
	}

	// Stale, unhealthy, or differently configured: replace it.
	logger.Info("Replacing existing %s instance of backend %s", existing.State, existing.Backend)
	m.terminateQuietly(existing)
	m.registry.Delete(existing.Backend)
	return nil, nil
}

// Stop terminates a backend's container and drops its record. It fails
// with *NotRunningError when no instance is managed for the backend.
//
// Registry membership alone authorizes the stop: a restored container
// whose backend id has since left the catalog is still stoppable, so
// stray instances never outlive their catalog entry.
func (m *Manager) Stop(ctx context.Context, backendID string) error {
	rec := m.registry.Get(backendID)
	if rec == nil {
		if _, err := m.catalog.Get(backendID); err != nil {
			return err
		}
		return &NotRunningError{Backend: backendID}
	}

	m.registry.Update(backendID, func(r *Record) { r.State = StateStopping })
	if err := m.runtime.Terminate(ctx, rec.ContainerID, stopGrace); err != nil {
		return fmt.Errorf("failed to stop backend %s: %w", backendID, err)
	}

	m.registry.Delete(backendID)
	logger.Info("Backend %s stopped", backendID)

	return nil
}

// StopAll stops every managed backend, continuing past individual
// failures and joining them into one error.
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, rec := range m.registry.All() {
		if err := m.Stop(ctx, rec.Backend); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status returns the refreshed record for a backend. A container found
// dead during the refresh flips the record to Unhealthy before it is
// returned; the record is dropped so the next serve starts clean.
func (m *Manager) Status(ctx context.Context, backendID string) (*Record, error) {
	rec := m.registry.Get(backendID)
	if rec == nil {
		if _, err := m.catalog.Get(backendID); err != nil {
			return nil, err
		}
		return nil, &NotRunningError{Backend: backendID}
	}

	m.refresh(ctx, rec)
	return rec, nil
}

// List returns refreshed records for all managed backends.
func (m *Manager) List(ctx context.Context) []*Record {
	records := m.registry.All()
	for _, rec := range records {
		m.refresh(ctx, rec)
	}
	return records
}

// refresh reconciles one record with the engine's view of its
// container.
func (m *Manager) refresh(ctx context.Context, rec *Record) {
	if rec.State != StateRunning {
		return
	}

	state, err := m.runtime.Inspect(ctx, rec.ContainerID)
	if err != nil {
		rec.State = StateUnhealthy
		rec.Error = fmt.Sprintf("container disappeared: %v", err)
		m.registry.Delete(rec.Backend)
		return
	}
	if !state.Running {
		rec.State = StateUnhealthy
		rec.Error = state.Error
		if rec.Error == "" {
			rec.Error = fmt.Sprintf("container exited with code %d", state.ExitCode)
		}
		logger.Warn("Backend %s crashed: %s", rec.Backend, rec.Error)
		m.registry.Delete(rec.Backend)
	}
}

// terminateQuietly tears a container down on cleanup paths where the
// original error matters more than the cleanup's.
func (m *Manager) terminateQuietly(rec *Record) {
	if rec.ContainerID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopGrace+5*time.Second)
	defer cancel()
	if err := m.runtime.Terminate(ctx, rec.ContainerID, stopGrace); err != nil {
		logger.Warn("Cleanup of container for backend %s failed: %v", rec.Backend, err)
	}
}

// launchSpec converts a resolved plan plus its record identity into the
// engine-level launch spec.
func launchSpec(plan *LaunchPlan, rec *Record) *container.LaunchSpec {
	deviceMappings := make([]container.DeviceMapping, 0, len(plan.Devices))
	for _, d := range plan.Devices {
		deviceMappings = append(deviceMappings, container.DeviceMapping{
			PathOnHost:        d.HostPath,
			PathInContainer:   d.ContainerPath,
			CgroupPermissions: d.Permissions,
		})
	}

	return &container.LaunchSpec{
		Name:          plan.Backend.ContainerName,
		Image:         plan.Image,
		HostPort:      plan.Port,
		ContainerPort: plan.Backend.ContainerPort,
		Env:           plan.Env,
		Cmd:           plan.Cmd,
		Devices:       deviceMappings,
		Mounts:        plan.Mounts,
		GPU:           plan.GPU,
		Labels: map[string]string{
			container.LabelBackend:    rec.Backend,
			container.LabelModel:      rec.Model,
			container.LabelInstanceID: rec.InstanceID,
			container.LabelPort:       fmt.Sprintf("%d", rec.Port),
			container.LabelMode:       string(rec.Mode),
		},
	}
}
