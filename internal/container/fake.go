package container

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// FakeRuntime is an in-memory Runtime used by tests. It records launch
// specs and supports scripted failures and state transitions.
type FakeRuntime struct {
	mu      sync.Mutex
	nextID  int
	entries map[string]*fakeEntry

	// LaunchErr makes the next Launch fail when set.
	LaunchErr error

	// TerminateErr makes the next Terminate fail when set.
	TerminateErr error

	// Launched collects every spec passed to Launch, in order.
	Launched []*LaunchSpec
}

type fakeEntry struct {
	spec  *LaunchSpec
	state State
}

// NewFakeRuntime returns an empty fake engine.
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{entries: make(map[string]*fakeEntry)}
}

func (f *FakeRuntime) Launch(ctx context.Context, spec *LaunchSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.LaunchErr != nil {
		err := f.LaunchErr
		f.LaunchErr = nil
		return "", err
	}

	f.nextID++
	id := "fake-" + strconv.Itoa(f.nextID)
	f.entries[id] = &fakeEntry{
		spec: spec,
		state: State{
			Running:   true,
			Status:    "running",
			StartedAt: time.Now(),
		},
	}
	f.Launched = append(f.Launched, spec)
	return id, nil
}

func (f *FakeRuntime) Terminate(ctx context.Context, containerID string, grace time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.TerminateErr != nil {
		err := f.TerminateErr
		f.TerminateErr = nil
		return err
	}
	if _, ok := f.entries[containerID]; !ok {
		return fmt.Errorf("no such container: %s", containerID)
	}
	delete(f.entries, containerID)
	return nil
}

func (f *FakeRuntime) Inspect(ctx context.Context, containerID string) (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[containerID]
	if !ok {
		return nil, fmt.Errorf("no such container: %s", containerID)
	}
	state := entry.state
	return &state, nil
}

func (f *FakeRuntime) Discover(ctx context.Context) ([]Discovered, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	found := make([]Discovered, 0, len(f.entries))
	for id, entry := range f.entries {
		port, _ := strconv.Atoi(entry.spec.Labels[LabelPort])
		found = append(found, Discovered{
			ContainerID: id,
			InstanceID:  entry.spec.Labels[LabelInstanceID],
			Backend:     entry.spec.Labels[LabelBackend],
			Model:       entry.spec.Labels[LabelModel],
			Mode:        entry.spec.Labels[LabelMode],
			Port:        port,
			Running:     entry.state.Running,
			StartedAt:   entry.state.StartedAt,
		})
	}
	return found, nil
}

// Crash marks a container as exited with the given code, simulating an
// unexpected process death.
func (f *FakeRuntime) Crash(containerID string, exitCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if entry, ok := f.entries[containerID]; ok {
		entry.state.Running = false
		entry.state.Status = "exited"
		entry.state.ExitCode = exitCode
		entry.state.Error = fmt.Sprintf("container exited with code %d", exitCode)
	}
}

// Count reports how many containers are currently present.
func (f *FakeRuntime) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
