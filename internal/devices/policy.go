// Package devices plans hardware device passthrough for backend
// containers.
//
// The policy decides which host devices (serial adapters, cameras,
// GPUs) are mapped into a container and whether the backend runs
// against real or simulated hardware. The mock/real distinction is a
// first-class return value, not exception-driven control flow: when a
// required physical device cannot be enumerated the plan degrades to
// mock mode instead of failing, so serving a robot-control backend
// never hard-fails merely because no robot is attached.
package devices

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/getsolo/solo/internal/catalog"
	"github.com/getsolo/solo/internal/hardware"
	"github.com/getsolo/solo/internal/logger"
)

// Environment directives consumed by launched backend processes. These
// two variables are the whole hardware-mode contract between the
// orchestrator and the served process.
const (
	// EnvMockHardware selects simulated hardware inside the container
	// ("true"/"false").
	EnvMockHardware = "MOCK_HARDWARE"

	// EnvRobotPort tells the backend which serial device node to open.
	EnvRobotPort = "ROBOT_PORT"
)

// Mode says whether the backend will drive real hardware or a
// simulation.
type Mode string

const (
	ModeReal Mode = "real"
	ModeMock Mode = "mock"
)

// Mapping maps one host device node into the container. Devices keep
// their host path inside the container so backend configuration stays
// portable between containerized and bare-metal runs.
type Mapping struct {
	HostPath      string
	ContainerPath string
	Permissions   string // cgroup permissions, "rwm" for device nodes
}

// Options carries the user-facing overrides that influence planning.
type Options struct {
	// MockHardware forces mock (true) or real (false) mode when set.
	// Real mode still degrades to mock if no device is found.
	MockHardware *bool

	// SerialPort overrides serial enumeration with an explicit device
	// path.
	SerialPort string

	// GPURequested records that the user explicitly asked for GPU
	// passthrough; only then does GPU unavailability become an error.
	GPURequested bool
}

// Plan is the policy's decision for one launch.
type Plan struct {
	Mappings []Mapping
	Mode     Mode
	Env      map[string]string

	// GPU requests GPU passthrough from the container runtime (NVIDIA
	// device requests). AMD GPUs are passed through as plain device
	// mappings instead and do not set this flag.
	GPU bool
}

// GPUUnavailableError is returned only when the user explicitly
// requested GPU passthrough on a machine where it cannot be provided.
// Implicit GPU use downgrades silently to the CPU image instead.
type GPUUnavailableError struct {
	Vendor hardware.GPUVendor
}

func (e *GPUUnavailableError) Error() string {
	if e.Vendor == hardware.VendorNone {
		return "gpu passthrough requested but no gpu was detected"
	}
	return fmt.Sprintf("gpu passthrough requested but %s gpus cannot be passed to containers on this host", e.Vendor)
}

// Policy enumerates host devices and produces passthrough plans. The
// enumeration functions are injectable for tests.
type Policy struct {
	listSerial func() []string
	listVideo  func() []string
}

// NewPolicy returns a policy backed by real device enumeration.
func NewPolicy() *Policy {
	return &Policy{
		listSerial: enumerateSerialDevices,
		listVideo:  enumerateVideoDevices,
	}
}

// PlanDevices decides device mappings and hardware mode for a backend.
//
// Physical device classes (serial, video) degrade to mock mode when
// nothing is enumerable; that path never returns an error. The only
// error case is an explicit GPU request that cannot be satisfied.
func (p *Policy) PlanDevices(required []catalog.DeviceClass, profile *hardware.Profile, opts Options) (*Plan, error) {
	plan := &Plan{
		Mode: ModeReal,
		Env:  make(map[string]string),
	}

	needsPhysical := false
	for _, class := range required {
		switch class {
		case catalog.DeviceSerial, catalog.DeviceVideo:
			needsPhysical = true
		case catalog.DeviceGPU:
			if err := p.planGPU(plan, profile, opts); err != nil {
				return nil, err
			}
		}
	}

	if !needsPhysical {
		return plan, nil
	}

	if opts.MockHardware != nil && *opts.MockHardware {
		plan.Mode = ModeMock
		plan.Env[EnvMockHardware] = "true"
		logger.Info("Mock hardware mode forced by directive")
		return plan, nil
	}

	for _, class := range required {
		switch class {
		case catalog.DeviceSerial:
			p.planSerial(plan, opts)
		case catalog.DeviceVideo:
			p.planVideo(plan)
		}
	}

	// No physical device found for any required class: degrade to mock
	// mode rather than failing the launch.
	if len(physicalMappings(plan)) == 0 {
		plan.Mode = ModeMock
		plan.Env[EnvMockHardware] = "true"
		delete(plan.Env, EnvRobotPort)
		logger.Warn("No matching hardware devices found; serving in mock mode")
		return plan, nil
	}

	plan.Env[EnvMockHardware] = "false"
	return plan, nil
}

func (p *Policy) planSerial(plan *Plan, opts Options) {
	candidates := p.listSerial()
	if opts.SerialPort != "" {
		candidates = []string{opts.SerialPort}
	}
	if len(candidates) == 0 {
		return
	}
	// First adapter is the primary arm; additional adapters are mapped
	// too so multi-arm setups work without extra flags.
	for _, dev := range candidates {
		plan.Mappings = append(plan.Mappings, Mapping{
			HostPath:      dev,
			ContainerPath: dev,
			Permissions:   "rwm",
		})
	}
	plan.Env[EnvRobotPort] = candidates[0]
	logger.Info("Serial passthrough: %s", candidates[0])
}

func (p *Policy) planVideo(plan *Plan) {
	for _, dev := range p.listVideo() {
		plan.Mappings = append(plan.Mappings, Mapping{
			HostPath:      dev,
			ContainerPath: dev,
			Permissions:   "rwm",
		})
	}
}

func (p *Policy) planGPU(plan *Plan, profile *hardware.Profile, opts Options) error {
	switch profile.GPUVendor {
	case hardware.VendorNvidia:
		if profile.ComputeBackend != hardware.BackendCUDA {
			// Driver without container toolkit: passthrough would fail
			// at launch.
			if opts.GPURequested {
				return &GPUUnavailableError{Vendor: profile.GPUVendor}
			}
			logger.Warn("NVIDIA gpu present but CUDA toolkit missing; using cpu image")
			return nil
		}
		plan.GPU = true
	case hardware.VendorAMD:
		// ROCm containers want the kfd and dri nodes mapped directly.
		plan.Mappings = append(plan.Mappings,
			Mapping{HostPath: "/dev/kfd", ContainerPath: "/dev/kfd", Permissions: "rwm"},
			Mapping{HostPath: "/dev/dri", ContainerPath: "/dev/dri", Permissions: "rwm"},
		)
	case hardware.VendorApple:
		// No container GPU passthrough exists on macOS; the arm image
		// selected by the resolver runs on CPU/Metal outside Docker's
		// control. Explicit requests are refused rather than silently
		// ignored.
		if opts.GPURequested {
			return &GPUUnavailableError{Vendor: profile.GPUVendor}
		}
	case hardware.VendorNone:
		if opts.GPURequested {
			return &GPUUnavailableError{Vendor: profile.GPUVendor}
		}
	}
	return nil
}

// physicalMappings filters out GPU-related nodes so mock-mode detection
// only considers serial and video devices.
func physicalMappings(plan *Plan) []Mapping {
	out := make([]Mapping, 0, len(plan.Mappings))
	for _, m := range plan.Mappings {
		if m.HostPath == "/dev/kfd" || m.HostPath == "/dev/dri" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// enumerateSerialDevices lists serial adapters a robot arm could be
// attached to. Enumeration failure is treated as "no devices".
func enumerateSerialDevices() []string {
	var patterns []string
	switch runtime.GOOS {
	case "darwin":
		patterns = []string{"/dev/tty.usb*", "/dev/cu.usb*"}
	default:
		patterns = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}
	}
	return globAll(patterns)
}

// enumerateVideoDevices lists camera device nodes.
func enumerateVideoDevices() []string {
	if runtime.GOOS != "linux" {
		return nil
	}
	return globAll([]string{"/dev/video*"})
}

func globAll(patterns []string) []string {
	var out []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out
}
