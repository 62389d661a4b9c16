package orchestrator

import (
	"fmt"
	"time"
)

// PortConflictError reports a launch whose resolved host port is
// already claimed by another managed backend.
type PortConflictError struct {
	Port    int
	Backend string // the backend already holding the port
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("port %d is already in use by backend %q", e.Port, e.Backend)
}

// ContainerLaunchError wraps an engine failure while creating or
// starting a backend container.
type ContainerLaunchError struct {
	Backend string
	Err     error
}

func (e *ContainerLaunchError) Error() string {
	return fmt.Sprintf("failed to launch container for backend %q: %v", e.Backend, e.Err)
}

func (e *ContainerLaunchError) Unwrap() error {
	return e.Err
}

// HealthCheckTimeoutError reports a backend whose container started but
// never answered its health probe within the allotted time. The
// container is left in place for diagnosis.
type HealthCheckTimeoutError struct {
	Backend string
	Timeout time.Duration
}

func (e *HealthCheckTimeoutError) Error() string {
	return fmt.Sprintf("backend %q did not become healthy within %s", e.Backend, e.Timeout)
}

// NotRunningError reports a stop or status request for a backend with
// no managed instance.
type NotRunningError struct {
	Backend string
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("backend %q is not running", e.Backend)
}
