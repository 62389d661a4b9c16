package container

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/getsolo/solo/internal/logger"
)

// DockerRuntime implements Runtime against the Docker Engine API.
//
// The client is created from the environment, so DOCKER_HOST,
// DOCKER_TLS_VERIFY and DOCKER_CERT_PATH are respected. API version
// negotiation keeps the binary compatible across daemon versions.
type DockerRuntime struct {
	client *client.Client
}

// NewDockerRuntime creates a Docker-backed runtime and verifies daemon
// connectivity with a short ping so failures surface before any launch
// is attempted.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("Docker daemon is not accessible: %w", err)
	}

	logger.Debug("Docker runtime initialized")

	return &DockerRuntime{client: cli}, nil
}

// Launch creates and starts a container. If the start
// fails after creation, the created container is removed so no
// half-launched container leaks on the engine.
func (r *DockerRuntime) Launch(ctx context.Context, spec *LaunchSpec) (string, error) {
	if spec == nil || spec.Image == "" {
		return "", fmt.Errorf("launch spec requires an image")
	}

	envList := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		envList = append(envList, fmt.Sprintf("%s=%s", k, v))
	}

	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	if spec.HostPort > 0 && spec.ContainerPort > 0 {
		containerPort := nat.Port(fmt.Sprintf("%d/tcp", spec.ContainerPort))
		exposedPorts[containerPort] = struct{}{}
		portBindings[containerPort] = []nat.PortBinding{
			{
				HostIP:   "0.0.0.0",
				HostPort: strconv.Itoa(spec.HostPort),
			},
		}
	}

	labels := map[string]string{LabelManaged: "true"}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	containerConfig := &container.Config{
		Image:        spec.Image,
		Env:          envList,
		Cmd:          spec.Cmd,
		ExposedPorts: exposedPorts,
		Labels:       labels,
	}

	devices := make([]container.DeviceMapping, 0, len(spec.Devices))
	for _, d := range spec.Devices {
		devices = append(devices, container.DeviceMapping{
			PathOnHost:        d.PathOnHost,
			PathInContainer:   d.PathInContainer,
			CgroupPermissions: d.CgroupPermissions,
		})
	}

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		kind := mount.TypeBind
		if m.Volume {
			kind = mount.TypeVolume
		}
		mounts = append(mounts, mount.Mount{
			Type:     kind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Devices: devices,
		},
		Mounts:       mounts,
		PortBindings: portBindings,
		NetworkMode:  "bridge",
		Init:         boolPtr(true),
	}

	if spec.GPU {
		hostConfig.Resources.DeviceRequests = []container.DeviceRequest{
			{
				Count:        -1, // all GPUs
				Capabilities: [][]string{{"gpu"}},
			},
		}
	}

	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	logger.Debug("Created container %s (%s)", spec.Name, shortID(resp.ID))

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Clean up the created but never-started container.
		removeErr := r.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		if removeErr != nil {
			logger.Warn("Failed to remove container %s after start failure: %v", shortID(resp.ID), removeErr)
		}
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	logger.Info("Started container %s (%s)", spec.Name, shortID(resp.ID))

	return resp.ID, nil
}

// Terminate stops a container with the given grace period, then
// removes it along with its anonymous volumes. A container that is
// already stopped is still removed.
func (r *DockerRuntime) Terminate(ctx context.Context, containerID string, grace time.Duration) error {
	seconds := int(grace.Seconds())
	stopOptions := container.StopOptions{Timeout: &seconds}

	logger.Info("Stopping container %s (grace %s)", shortID(containerID), grace)

	if err := r.client.ContainerStop(ctx, containerID, stopOptions); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	removeOptions := container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	}
	if err := r.client.ContainerRemove(ctx, containerID, removeOptions); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	logger.Debug("Removed container %s", shortID(containerID))

	return nil
}

// Inspect maps the engine's container state into the orchestrator's
// view. An OOM kill or nonzero exit code is surfaced through the Error
// field so crash detection does not need to re-derive it.
func (r *DockerRuntime) Inspect(ctx context.Context, containerID string) (*State, error) {
	data, err := r.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	if data.State == nil {
		return nil, fmt.Errorf("container %s has no state", shortID(containerID))
	}

	state := &State{
		Running:  data.State.Running,
		Status:   data.State.Status,
		ExitCode: data.State.ExitCode,
	}

	if data.State.StartedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, data.State.StartedAt); err == nil {
			state.StartedAt = t
		}
	}

	switch {
	case data.State.OOMKilled:
		state.Error = "container was killed by the OOM killer"
	case data.State.Error != "":
		state.Error = data.State.Error
	case !data.State.Running && data.State.ExitCode != 0:
		state.Error = fmt.Sprintf("container exited with code %d", data.State.ExitCode)
	}

	return state, nil
}

// Discover lists all solo-managed containers, running or not, and
// reconstructs their identity from labels. Containers with incomplete
// labels are skipped with a warning rather than failing the whole
// listing.
func (r *DockerRuntime) Discover(ctx context.Context) ([]Discovered, error) {
	containers, err := r.client.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", LabelManaged+"=true"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	found := make([]Discovered, 0, len(containers))
	for _, c := range containers {
		backend := c.Labels[LabelBackend]
		if backend == "" {
			logger.Warn("Skipping container %s: missing %s label", shortID(c.ID), LabelBackend)
			continue
		}

		port, _ := strconv.Atoi(c.Labels[LabelPort])

		d := Discovered{
			ContainerID: c.ID,
			InstanceID:  c.Labels[LabelInstanceID],
			Backend:     backend,
			Model:       c.Labels[LabelModel],
			Mode:        c.Labels[LabelMode],
			Port:        port,
			Running:     c.State == "running",
			StartedAt:   time.Unix(c.Created, 0),
		}

		// For running containers the precise start time matters for
		// uptime display; fall back to the creation time otherwise.
		if d.Running {
			if data, err := r.client.ContainerInspect(ctx, c.ID); err == nil &&
				data.State != nil && data.State.StartedAt != "" {
				if t, err := time.Parse(time.RFC3339Nano, data.State.StartedAt); err == nil {
					d.StartedAt = t
				}
			}
		}

		found = append(found, d)
	}

	return found, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func boolPtr(b bool) *bool {
	return &b
}
