package hardware

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/getsolo/solo/internal/logger"
)

// queryTimeout bounds every external vendor-tool invocation so that a
// wedged driver cannot stall profile detection.
const queryTimeout = 5 * time.Second

// Profiler detects the local machine's compute profile.
//
// The zero value is not usable; construct with NewProfiler. The probe
// functions are injectable so the classification logic is testable on
// machines without the corresponding hardware.
type Profiler struct {
	goos        string
	numCPU      func() int
	cpuModel    func(goos string) string
	memoryGB    func(goos string) float64
	nvidiaQuery func() (model string, memMB int, ok bool)
	cudaToolkit func() bool
	amdQuery    func() (model string, ok bool)
	appleQuery  func() bool
}

// NewProfiler creates a profiler backed by the real system probes.
func NewProfiler() *Profiler {
	return &Profiler{
		goos:        runtime.GOOS,
		numCPU:      runtime.NumCPU,
		cpuModel:    detectCPUModel,
		memoryGB:    detectMemoryGB,
		nvidiaQuery: queryNvidiaSMI,
		cudaToolkit: cudaToolkitPresent,
		amdQuery:    queryAMD,
		appleQuery:  appleSiliconPresent,
	}
}

// Detect inspects the machine and returns its compute profile.
//
// GPU vendor classification precedence: NVIDIA driver plus CUDA toolkit
// selects CUDA; otherwise AMD selects HIP; otherwise Apple silicon
// selects Metal; otherwise the profile is CPU-only. An NVIDIA driver
// without the toolkit is reported with vendor nvidia but a CPU compute
// backend, since CUDA images cannot run on such a host.
//
// It fails with *DetectionError only when a mandatory baseline field
// (OS, CPU core count) cannot be read.
func (p *Profiler) Detect() (*Profile, error) {
	if p.goos == "" {
		return nil, &DetectionError{Field: "operating system"}
	}
	cores := p.numCPU()
	if cores <= 0 {
		return nil, &DetectionError{Field: "cpu core count"}
	}

	profile := &Profile{
		OS:             p.goos,
		CPUModel:       p.cpuModel(p.goos),
		CPUCores:       cores,
		MemoryGB:       p.memoryGB(p.goos),
		GPUVendor:      VendorNone,
		ComputeBackend: BackendCPU,
	}

	switch {
	case p.classifyNvidia(profile):
	case p.classifyAMD(profile):
	case p.appleQuery():
		profile.GPUVendor = VendorApple
		profile.GPUModel = profile.CPUModel
		profile.ComputeBackend = BackendMetal
	}

	logger.Debug("Detected profile: os=%s cores=%d gpu=%s backend=%s",
		profile.OS, profile.CPUCores, profile.GPUVendor, profile.ComputeBackend)

	return profile, nil
}

func (p *Profiler) classifyNvidia(profile *Profile) bool {
	model, memMB, ok := p.nvidiaQuery()
	if !ok {
		return false
	}
	profile.GPUVendor = VendorNvidia
	profile.GPUModel = model
	profile.GPUMemoryMB = memMB
	if p.cudaToolkit() {
		profile.ComputeBackend = BackendCUDA
	} else {
		// Driver present but no toolkit: CUDA images would fail to
		// initialize, so the host stays on the CPU compute backend.
		logger.Warn("NVIDIA driver detected without CUDA toolkit; staying on CPU backend")
	}
	return true
}

func (p *Profiler) classifyAMD(profile *Profile) bool {
	model, ok := p.amdQuery()
	if !ok {
		return false
	}
	profile.GPUVendor = VendorAMD
	profile.GPUModel = model
	profile.ComputeBackend = BackendHIP
	return true
}

// detectCPUModel returns a human-readable CPU model string, or "Unknown"
// when the platform offers no readable source. The model is informational
// only and never gates resolution.
func detectCPUModel(goos string) string {
	switch goos {
	case "linux":
		data, err := os.ReadFile("/proc/cpuinfo")
		if err != nil {
			return "Unknown"
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "model name") {
				if _, value, found := strings.Cut(line, ":"); found {
					return strings.TrimSpace(value)
				}
			}
		}
	case "darwin":
		if out, err := runQuery("sysctl", "-n", "machdep.cpu.brand_string"); err == nil {
			return strings.TrimSpace(out)
		}
	}
	return "Unknown"
}

// detectMemoryGB returns total physical memory in GiB, or 0 when it
// cannot be read. Memory is advisory (backend recommendation only), so
// failure to read it is not a detection error.
func detectMemoryGB(goos string) float64 {
	switch goos {
	case "linux":
		data, err := os.ReadFile("/proc/meminfo")
		if err != nil {
			return 0
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "MemTotal:") {
				fields := strings.Fields(line)
				if len(fields) >= 2 {
					kb, err := strconv.ParseFloat(fields[1], 64)
					if err == nil {
						return kb / (1024 * 1024)
					}
				}
			}
		}
	case "darwin":
		if out, err := runQuery("sysctl", "-n", "hw.memsize"); err == nil {
			bytes, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
			if err == nil {
				return bytes / (1024 * 1024 * 1024)
			}
		}
	}
	return 0
}

// queryNvidiaSMI probes the NVIDIA driver through nvidia-smi.
// A missing binary or a failing query both mean "no usable NVIDIA GPU".
func queryNvidiaSMI() (string, int, bool) {
	out, err := runQuery("nvidia-smi",
		"--query-gpu=name,memory.total", "--format=csv,noheader,nounits")
	if err != nil {
		return "", 0, false
	}
	// First line covers the primary GPU: "NVIDIA GeForce RTX 4090, 24564"
	line := strings.SplitN(strings.TrimSpace(out), "\n", 2)[0]
	name, mem, found := strings.Cut(line, ",")
	if !found {
		return strings.TrimSpace(line), 0, line != ""
	}
	memMB, _ := strconv.Atoi(strings.TrimSpace(mem))
	return strings.TrimSpace(name), memMB, true
}

// cudaToolkitPresent reports whether the CUDA toolkit or the NVIDIA
// container toolkit is installed alongside the driver.
func cudaToolkitPresent() bool {
	for _, bin := range []string{"nvcc", "nvidia-container-cli", "nvidia-container-runtime"} {
		if _, err := exec.LookPath(bin); err == nil {
			return true
		}
	}
	if _, err := os.Stat("/usr/local/cuda"); err == nil {
		return true
	}
	return false
}

// queryAMD probes for an AMD GPU with ROCm-capable drivers. The kfd
// device node is what ROCm containers actually need, so its presence is
// the detection criterion; rocm-smi only refines the model name.
func queryAMD() (string, bool) {
	if _, err := os.Stat("/dev/kfd"); err != nil {
		return "", false
	}
	if out, err := runQuery("rocm-smi", "--showproductname", "--csv"); err == nil {
		for _, line := range strings.Split(out, "\n") {
			if strings.Contains(line, "card") && strings.Contains(line, ",") {
				parts := strings.Split(line, ",")
				return strings.TrimSpace(parts[len(parts)-1]), true
			}
		}
	}
	return "AMD GPU", true
}

// appleSiliconPresent reports whether the host is an Apple silicon Mac.
func appleSiliconPresent() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}

func runQuery(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
