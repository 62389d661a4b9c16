package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProfiler builds a profiler whose probes are fully controlled by
// the test, so classification runs identically on any build machine.
func fakeProfiler() *Profiler {
	return &Profiler{
		goos:        "linux",
		numCPU:      func() int { return 8 },
		cpuModel:    func(string) string { return "Test CPU" },
		memoryGB:    func(string) float64 { return 32 },
		nvidiaQuery: func() (string, int, bool) { return "", 0, false },
		cudaToolkit: func() bool { return false },
		amdQuery:    func() (string, bool) { return "", false },
		appleQuery:  func() bool { return false },
	}
}

func TestDetectCPUOnly(t *testing.T) {
	p := fakeProfiler()

	profile, err := p.Detect()
	require.NoError(t, err)

	assert.Equal(t, "linux", profile.OS)
	assert.Equal(t, 8, profile.CPUCores)
	assert.Equal(t, VendorNone, profile.GPUVendor)
	assert.Equal(t, BackendCPU, profile.ComputeBackend)
	assert.False(t, profile.HasGPU())
}

func TestDetectVendorPrecedence(t *testing.T) {
	tests := []struct {
		name        string
		nvidia      bool
		toolkit     bool
		amd         bool
		apple       bool
		wantVendor  GPUVendor
		wantBackend ComputeBackend
	}{
		{"nvidia with toolkit", true, true, false, false, VendorNvidia, BackendCUDA},
		{"nvidia without toolkit stays on cpu backend", true, false, false, false, VendorNvidia, BackendCPU},
		{"nvidia wins over amd", true, true, true, false, VendorNvidia, BackendCUDA},
		{"amd", false, false, true, false, VendorAMD, BackendHIP},
		{"amd wins over apple", false, false, true, true, VendorAMD, BackendHIP},
		{"apple", false, false, false, true, VendorApple, BackendMetal},
		{"none", false, false, false, false, VendorNone, BackendCPU},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fakeProfiler()
			if tt.nvidia {
				p.nvidiaQuery = func() (string, int, bool) { return "NVIDIA RTX 4090", 24564, true }
			}
			p.cudaToolkit = func() bool { return tt.toolkit }
			if tt.amd {
				p.amdQuery = func() (string, bool) { return "Radeon RX 7900", true }
			}
			p.appleQuery = func() bool { return tt.apple }

			profile, err := p.Detect()
			require.NoError(t, err)
			assert.Equal(t, tt.wantVendor, profile.GPUVendor)
			assert.Equal(t, tt.wantBackend, profile.ComputeBackend)
		})
	}
}

func TestDetectIdempotent(t *testing.T) {
	p := fakeProfiler()
	p.nvidiaQuery = func() (string, int, bool) { return "NVIDIA A100", 40960, true }
	p.cudaToolkit = func() bool { return true }

	first, err := p.Detect()
	require.NoError(t, err)
	second, err := p.Detect()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDetectBaselineFailures(t *testing.T) {
	p := fakeProfiler()
	p.numCPU = func() int { return 0 }

	_, err := p.Detect()
	var derr *DetectionError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "cpu core count", derr.Field)

	p = fakeProfiler()
	p.goos = ""
	_, err = p.Detect()
	require.ErrorAs(t, err, &derr)
}

func TestGPUAbsenceIsNotAnError(t *testing.T) {
	p := fakeProfiler()

	profile, err := p.Detect()
	require.NoError(t, err)
	assert.Equal(t, VendorNone, profile.GPUVendor)
	assert.Zero(t, profile.GPUMemoryMB)
}
