// Package container abstracts the container engine behind a small
// capability interface.
//
// The lifecycle manager talks to containers exclusively through the
// Runtime interface, so it is testable against an in-memory fake and
// alternate engines could be substituted for Docker.
package container

import (
	"context"
	"time"
)

// Labels attached to every container solo launches. They make
// instances discoverable after the CLI process exits, so status and
// stop invocations can rebuild their registry from the engine.
const (
	LabelManaged    = "solo.managed"
	LabelBackend    = "solo.backend"
	LabelModel      = "solo.model"
	LabelInstanceID = "solo.instance_id"
	LabelPort       = "solo.port"
	LabelMode       = "solo.hardware_mode"
)

// DeviceMapping maps a host device node into a container.
type DeviceMapping struct {
	PathOnHost        string
	PathInContainer   string
	CgroupPermissions string
}

// Mount is a storage mapping for the container.
type Mount struct {
	// Volume selects a named volume instead of a host bind.
	Volume   bool
	Source   string
	Target   string
	ReadOnly bool
}

// LaunchSpec carries everything needed to start one backend container.
type LaunchSpec struct {
	Name          string
	Image         string
	HostPort      int
	ContainerPort int
	Env           map[string]string
	Cmd           []string
	Devices       []DeviceMapping
	Mounts        []Mount

	// GPU requests engine-level GPU passthrough (NVIDIA device
	// requests). Vendor device-node mappings go through Devices.
	GPU bool

	Labels map[string]string
}

// State is the engine's view of a container, mapped to the fields the
// orchestrator cares about.
type State struct {
	Running   bool
	Status    string // engine status string ("running", "exited", ...)
	ExitCode  int
	Error     string // populated when the container died unexpectedly
	StartedAt time.Time
}

// Discovered describes a solo-managed container found on the engine,
// reconstructed from its labels.
type Discovered struct {
	ContainerID string
	InstanceID  string
	Backend     string
	Model       string
	Mode        string
	Port        int
	Running     bool
	StartedAt   time.Time
}

// Runtime is the capability interface the lifecycle manager depends on.
//
// Launch must be atomic from the caller's perspective: either the
// container is created and started (id returned) or nothing is left
// behind on the engine.
type Runtime interface {
	// Launch creates and starts a container, returning its engine id.
	Launch(ctx context.Context, spec *LaunchSpec) (string, error)

	// Terminate gracefully stops a container, force-killing after the
	// grace period, and removes it.
	Terminate(ctx context.Context, containerID string, grace time.Duration) error

	// Inspect returns the engine's current view of a container.
	Inspect(ctx context.Context, containerID string) (*State, error)

	// Discover lists solo-managed containers present on the engine.
	Discover(ctx context.Context) ([]Discovered, error)
}
