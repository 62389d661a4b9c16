package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/getsolo/solo/internal/catalog"
	"github.com/getsolo/solo/internal/container"
	"github.com/getsolo/solo/internal/devices"
	"github.com/getsolo/solo/internal/hardware"
)

// Final fallbacks applied when neither the user nor the descriptor
// supplies a value. Descriptors always carry defaults in practice, so
// these only matter for externally registered backends.
const (
	FallbackModel = "HuggingFaceTB/SmolLM2-1.7B-Instruct"
	FallbackPort  = 5070
)

// Overrides are the user-facing knobs for one serve invocation. Zero
// values mean "use the backend's default".
type Overrides struct {
	Model        string
	Port         int
	GPU          bool  // explicit GPU passthrough request
	MockHardware *bool // force mock (true) or real (false) hardware mode
	SerialPort   string
}

// LaunchPlan is a fully resolved launch: every default applied, the
// image chosen for the detected hardware, devices and environment
// decided. Plans are pure data; resolving has no side effects.
type LaunchPlan struct {
	Backend   *catalog.ServerDescriptor
	Model     string
	Port      int
	Image     string
	Cmd       []string
	Env       map[string]string
	Devices   []devices.Mapping
	Mounts    []container.Mount
	Mode      devices.Mode
	GPU       bool
	HealthURL string
}

// Resolver turns a backend id plus user overrides into a LaunchPlan.
type Resolver struct {
	catalog *catalog.Catalog
	policy  *devices.Policy

	// getenv is swappable for tests of credential passthrough.
	getenv func(string) string
}

// NewResolver returns a resolver over the given catalog with real
// device enumeration.
func NewResolver(cat *catalog.Catalog) *Resolver {
	return &Resolver{
		catalog: cat,
		policy:  devices.NewPolicy(),
		getenv:  os.Getenv,
	}
}

// Resolve computes the launch plan for a backend. Precedence for every
// value is user override, then descriptor default, then the package
// fallback constants.
func (r *Resolver) Resolve(backendID string, profile *hardware.Profile, opts Overrides) (*LaunchPlan, error) {
	desc, err := r.catalog.Get(backendID)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = desc.DefaultModel
	}
	if model == "" {
		model = FallbackModel
	}

	port := opts.Port
	if port == 0 {
		port = desc.DefaultPort
	}
	if port == 0 {
		port = FallbackPort
	}

	devicePlan, err := r.policy.PlanDevices(desc.RequiredDevices, profile, devices.Options{
		MockHardware: opts.MockHardware,
		SerialPort:   opts.SerialPort,
		GPURequested: opts.GPU,
	})
	if err != nil {
		return nil, err
	}

	image, err := desc.ImageFor(r.effectiveVendor(profile, desc, devicePlan))
	if err != nil {
		return nil, err
	}

	env := desc.RenderEnv(model)
	for k, v := range devicePlan.Env {
		env[k] = v
	}
	for _, name := range desc.PassthroughEnv {
		if v := r.getenv(name); v != "" {
			env[name] = v
		}
	}

	mounts, err := resolveMounts(desc.Mounts)
	if err != nil {
		return nil, err
	}

	return &LaunchPlan{
		Backend:   desc,
		Model:     model,
		Port:      port,
		Image:     image,
		Cmd:       desc.RenderCommand(model),
		Env:       env,
		Devices:   devicePlan.Mappings,
		Mounts:    mounts,
		Mode:      devicePlan.Mode,
		GPU:       devicePlan.GPU,
		HealthURL: fmt.Sprintf("http://localhost:%d%s", port, desc.HealthPath),
	}, nil
}

// effectiveVendor picks the image-table key. An NVIDIA machine whose
// container toolkit is missing cannot run CUDA images, so the cpu
// fallback is selected even though the vendor is nvidia.
func (r *Resolver) effectiveVendor(profile *hardware.Profile, desc *catalog.ServerDescriptor, plan *devices.Plan) hardware.GPUVendor {
	if profile.GPUVendor == hardware.VendorNvidia && desc.RequiresDevice(catalog.DeviceGPU) && !plan.GPU {
		return hardware.VendorNone
	}
	return profile.GPUVendor
}

// resolveMounts expands "~" in bind sources. Missing bind directories
// are created by the launch path, not here, so resolving stays free of
// side effects.
func resolveMounts(specs []catalog.Mount) ([]container.Mount, error) {
	mounts := make([]container.Mount, 0, len(specs))
	for _, m := range specs {
		source := m.Source
		if m.Kind == catalog.MountBind {
			expanded, err := expandHome(source)
			if err != nil {
				return nil, err
			}
			source = expanded
		}
		mounts = append(mounts, container.Mount{
			Volume: m.Kind == catalog.MountVolume,
			Source: source,
			Target: m.Target,
		})
	}
	return mounts, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
