// Package catalog holds the static registry of servable backends.
//
// Each backend is described by a ServerDescriptor carrying its own
// defaults and per-GPU-vendor image table, so adding a backend is a
// catalog registration, never a new branch in orchestration control
// flow. The catalog is loaded once at process start and is read-only
// afterwards; all sessions share it.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getsolo/solo/internal/hardware"
)

// DeviceClass names a class of host devices a backend needs mapped into
// its container.
type DeviceClass string

const (
	DeviceSerial DeviceClass = "serial"
	DeviceVideo  DeviceClass = "video"
	DeviceGPU    DeviceClass = "gpu"
)

// ImageCPUKey is the image-table key used as the fallback when no
// vendor-specific image exists for the detected GPU vendor.
const ImageCPUKey = "cpu"

// modelPlaceholder is substituted with the resolved model identifier in
// command and environment templates.
const modelPlaceholder = "{model}"

// MountKind distinguishes host-path binds from named Docker volumes.
type MountKind string

const (
	MountBind   MountKind = "bind"
	MountVolume MountKind = "volume"
)

// Mount is a storage mapping the backend's container is started with,
// typically a model/weights cache surviving container replacement.
type Mount struct {
	Kind   MountKind
	Source string // host path ("~" expands to the user home) or volume name
	Target string
}

// ServerDescriptor describes one servable backend: its defaults, the
// container image per GPU vendor, and the host devices it needs.
// Descriptors are static data; nothing mutates them at runtime.
type ServerDescriptor struct {
	// ID is the backend identifier users pass to serve/stop.
	ID string

	// DefaultModel is served when the user does not override the model.
	DefaultModel string

	// DefaultPort is the host port the backend is published on unless
	// the user overrides it.
	DefaultPort int

	// ContainerPort is the port the server process listens on inside
	// the container.
	ContainerPort int

	// ContainerName names the launched container ("solo-<id>" by
	// convention) so stray instances are recognizable in docker ps.
	ContainerName string

	// HealthPath is the liveness probe path on the published port.
	HealthPath string

	// ImageByVendor maps a GPU vendor key (nvidia, amd, apple) to the
	// image launched for it. Every descriptor must carry a "cpu" entry
	// as the fallback.
	ImageByVendor map[string]string

	// RequiredDevices lists the device classes the backend wants
	// passed through. Physical classes (serial, video) degrade to mock
	// mode when absent; they never block serving.
	RequiredDevices []DeviceClass

	// CommandTemplate is the container command, with "{model}"
	// substituted at resolution time. Empty means the image default.
	CommandTemplate []string

	// EnvTemplate is extra container environment, with "{model}"
	// substituted at resolution time.
	EnvTemplate map[string]string

	// PassthroughEnv lists host environment variables forwarded into
	// the container when set (credentials such as the HF token).
	PassthroughEnv []string

	// Mounts are storage mappings the container is started with.
	Mounts []Mount
}

// ImageFor selects the container image for a GPU vendor, falling back
// to the cpu entry. It fails with *ImageNotFoundError when neither a
// vendor-specific nor a cpu entry exists.
func (d *ServerDescriptor) ImageFor(vendor hardware.GPUVendor) (string, error) {
	if img, ok := d.ImageByVendor[string(vendor)]; ok && img != "" {
		return img, nil
	}
	if img, ok := d.ImageByVendor[ImageCPUKey]; ok && img != "" {
		return img, nil
	}
	return "", &ImageNotFoundError{Backend: d.ID, Vendor: string(vendor)}
}

// RequiresDevice reports whether the descriptor asks for the given
// device class.
func (d *ServerDescriptor) RequiresDevice(class DeviceClass) bool {
	for _, c := range d.RequiredDevices {
		if c == class {
			return true
		}
	}
	return false
}

// RenderCommand substitutes the model identifier into the command
// template. A nil template stays nil (image default command).
func (d *ServerDescriptor) RenderCommand(model string) []string {
	if len(d.CommandTemplate) == 0 {
		return nil
	}
	cmd := make([]string, len(d.CommandTemplate))
	for i, arg := range d.CommandTemplate {
		cmd[i] = strings.ReplaceAll(arg, modelPlaceholder, model)
	}
	return cmd
}

// RenderEnv substitutes the model identifier into the environment
// template.
func (d *ServerDescriptor) RenderEnv(model string) map[string]string {
	env := make(map[string]string, len(d.EnvTemplate))
	for k, v := range d.EnvTemplate {
		env[k] = strings.ReplaceAll(v, modelPlaceholder, model)
	}
	return env
}

// UnknownBackendError reports a serve/stop request for a backend id the
// catalog does not know.
type UnknownBackendError struct {
	Backend string
	Known   []string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown backend %q (known backends: %s)",
		e.Backend, strings.Join(e.Known, ", "))
}

// ImageNotFoundError reports a descriptor without a usable image entry
// for a vendor, including the cpu fallback.
type ImageNotFoundError struct {
	Backend string
	Vendor  string
}

func (e *ImageNotFoundError) Error() string {
	return fmt.Sprintf("no container image configured for backend %q and gpu vendor %q (and no cpu fallback)",
		e.Backend, e.Vendor)
}

// Catalog is the registry of backend descriptors keyed by identifier.
type Catalog struct {
	descriptors map[string]*ServerDescriptor
}

// New returns an empty catalog. Most callers want NewDefault.
func New() *Catalog {
	return &Catalog{descriptors: make(map[string]*ServerDescriptor)}
}

// NewDefault returns a catalog seeded with the built-in backends.
func NewDefault() *Catalog {
	c := New()
	for _, d := range builtinDescriptors() {
		// Built-ins are vetted at authoring time; Register only fails
		// on duplicates, which would be a programming error here.
		if err := c.Register(d); err != nil {
			panic(err)
		}
	}
	return c
}

// Register adds a descriptor to the catalog. Registration happens at
// load time only; it fails on duplicate ids and on descriptors without
// a cpu fallback image.
func (c *Catalog) Register(d *ServerDescriptor) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("descriptor must have a backend id")
	}
	if _, exists := c.descriptors[d.ID]; exists {
		return fmt.Errorf("backend %q already registered", d.ID)
	}
	if img := d.ImageByVendor[ImageCPUKey]; img == "" {
		return fmt.Errorf("backend %q has no cpu fallback image", d.ID)
	}
	c.descriptors[d.ID] = d
	return nil
}

// Get returns the descriptor for a backend id, failing with
// *UnknownBackendError when the id is not registered.
func (c *Catalog) Get(backendID string) (*ServerDescriptor, error) {
	d, ok := c.descriptors[backendID]
	if !ok {
		return nil, &UnknownBackendError{Backend: backendID, Known: c.IDs()}
	}
	return d, nil
}

// IDs returns the registered backend identifiers in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.descriptors))
	for id := range c.descriptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns all descriptors sorted by backend id.
func (c *Catalog) List() []*ServerDescriptor {
	out := make([]*ServerDescriptor, 0, len(c.descriptors))
	for _, id := range c.IDs() {
		out = append(out, c.descriptors[id])
	}
	return out
}

// Recommend suggests a backend id for the detected profile, used when
// serve is invoked without an explicit backend.
//
// Machines with a discrete GPU and headroom get vllm, mid-range
// machines get ollama, constrained machines get llamacpp.
func Recommend(p *hardware.Profile) string {
	switch {
	case (p.GPUVendor == hardware.VendorNvidia || p.GPUVendor == hardware.VendorAMD) &&
		p.GPUMemoryMB >= 8192 && p.MemoryGB >= 16:
		return "vllm"
	case p.HasGPU() || p.MemoryGB >= 16:
		return "ollama"
	default:
		return "llamacpp"
	}
}
