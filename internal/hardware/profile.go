// Package hardware detects the capabilities of the local machine and
// classifies them into a compute profile.
//
// The profile drives two downstream decisions: which container image a
// backend is launched with (GPU-vendor specific images) and whether GPU
// passthrough is planned at all. Detection reads system interfaces only
// (sysfs, sysctl, vendor query tools) and has no side effects, so
// repeated calls on an unchanged machine return an equal profile.
package hardware

import "fmt"

// GPUVendor identifies the vendor of the primary GPU, or none.
type GPUVendor string

const (
	VendorNone   GPUVendor = "none"
	VendorNvidia GPUVendor = "nvidia"
	VendorAMD    GPUVendor = "amd"
	VendorApple  GPUVendor = "apple"
)

// ComputeBackend is the acceleration API the machine can serve models with.
type ComputeBackend string

const (
	BackendCUDA  ComputeBackend = "CUDA"
	BackendHIP   ComputeBackend = "HIP"
	BackendMetal ComputeBackend = "Metal"
	BackendCPU   ComputeBackend = "CPU"
)

// Profile is the detected hardware/software capability classification
// of the host. It is produced once per orchestration session and is
// immutable after creation; resolver and device-policy code only read it.
type Profile struct {
	OS             string         `json:"os"`
	CPUModel       string         `json:"cpu_model"`
	CPUCores       int            `json:"cpu_cores"`
	MemoryGB       float64        `json:"memory_gb"`
	GPUVendor      GPUVendor      `json:"gpu_vendor"`
	GPUModel       string         `json:"gpu_model"`
	GPUMemoryMB    int            `json:"gpu_memory_mb"`
	ComputeBackend ComputeBackend `json:"compute_backend"`
}

// HasGPU reports whether any GPU vendor was detected.
func (p *Profile) HasGPU() bool {
	return p.GPUVendor != VendorNone
}

// DetectionError indicates that a mandatory baseline field (operating
// system, CPU core count) could not be read. GPU absence is a valid
// detection result and never produces this error.
type DetectionError struct {
	Field string
	Err   error
}

func (e *DetectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hardware detection failed: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("hardware detection failed: %s unavailable", e.Field)
}

func (e *DetectionError) Unwrap() error { return e.Err }
