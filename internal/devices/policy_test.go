package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getsolo/solo/internal/catalog"
	"github.com/getsolo/solo/internal/hardware"
)

func testPolicy(serial, video []string) *Policy {
	return &Policy{
		listSerial: func() []string { return serial },
		listVideo:  func() []string { return video },
	}
}

func cpuProfile() *hardware.Profile {
	return &hardware.Profile{
		OS:             "linux",
		CPUCores:       8,
		GPUVendor:      hardware.VendorNone,
		ComputeBackend: hardware.BackendCPU,
	}
}

func boolPtr(b bool) *bool { return &b }

func TestMockFallbackWhenNoDevices(t *testing.T) {
	p := testPolicy(nil, nil)
	required := []catalog.DeviceClass{catalog.DeviceSerial, catalog.DeviceVideo}

	plan, err := p.PlanDevices(required, cpuProfile(), Options{})
	require.NoError(t, err, "missing hardware must degrade, never fail")

	assert.Equal(t, ModeMock, plan.Mode)
	assert.Empty(t, plan.Mappings)
	assert.Equal(t, "true", plan.Env[EnvMockHardware])
	assert.NotContains(t, plan.Env, EnvRobotPort)
}

func TestRealModeWithSerialAndVideo(t *testing.T) {
	p := testPolicy([]string{"/dev/ttyACM0", "/dev/ttyACM1"}, []string{"/dev/video0"})
	required := []catalog.DeviceClass{catalog.DeviceSerial, catalog.DeviceVideo}

	plan, err := p.PlanDevices(required, cpuProfile(), Options{})
	require.NoError(t, err)

	assert.Equal(t, ModeReal, plan.Mode)
	assert.Len(t, plan.Mappings, 3)
	assert.Equal(t, "false", plan.Env[EnvMockHardware])
	assert.Equal(t, "/dev/ttyACM0", plan.Env[EnvRobotPort])
}

func TestExplicitMockDirectiveSkipsEnumeration(t *testing.T) {
	p := testPolicy([]string{"/dev/ttyACM0"}, nil)

	plan, err := p.PlanDevices([]catalog.DeviceClass{catalog.DeviceSerial}, cpuProfile(),
		Options{MockHardware: boolPtr(true)})
	require.NoError(t, err)

	assert.Equal(t, ModeMock, plan.Mode)
	assert.Empty(t, plan.Mappings, "directive must win over attached hardware")
}

func TestSerialOverride(t *testing.T) {
	p := testPolicy([]string{"/dev/ttyUSB3"}, nil)

	plan, err := p.PlanDevices([]catalog.DeviceClass{catalog.DeviceSerial}, cpuProfile(),
		Options{SerialPort: "/dev/ttyUSB7"})
	require.NoError(t, err)

	assert.Equal(t, ModeReal, plan.Mode)
	require.Len(t, plan.Mappings, 1)
	assert.Equal(t, "/dev/ttyUSB7", plan.Mappings[0].HostPath)
	assert.Equal(t, "/dev/ttyUSB7", plan.Env[EnvRobotPort])
}

func TestGPURequestedWithoutGPU(t *testing.T) {
	p := testPolicy(nil, nil)

	_, err := p.PlanDevices([]catalog.DeviceClass{catalog.DeviceGPU}, cpuProfile(),
		Options{GPURequested: true})

	var gerr *GPUUnavailableError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, hardware.VendorNone, gerr.Vendor)
}

func TestGPUNotRequestedDowngradesSilently(t *testing.T) {
	p := testPolicy(nil, nil)

	plan, err := p.PlanDevices([]catalog.DeviceClass{catalog.DeviceGPU}, cpuProfile(), Options{})
	require.NoError(t, err)
	assert.False(t, plan.GPU)
	assert.Equal(t, ModeReal, plan.Mode)
}

func TestNvidiaGPUPassthrough(t *testing.T) {
	profile := &hardware.Profile{
		GPUVendor:      hardware.VendorNvidia,
		ComputeBackend: hardware.BackendCUDA,
	}
	p := testPolicy(nil, nil)

	plan, err := p.PlanDevices([]catalog.DeviceClass{catalog.DeviceGPU}, profile, Options{})
	require.NoError(t, err)
	assert.True(t, plan.GPU)
	assert.Empty(t, plan.Mappings)
}

func TestNvidiaWithoutToolkit(t *testing.T) {
	profile := &hardware.Profile{
		GPUVendor:      hardware.VendorNvidia,
		ComputeBackend: hardware.BackendCPU, // driver present, toolkit missing
	}
	p := testPolicy(nil, nil)

	plan, err := p.PlanDevices([]catalog.DeviceClass{catalog.DeviceGPU}, profile, Options{})
	require.NoError(t, err, "implicit gpu use downgrades silently")
	assert.False(t, plan.GPU)

	_, err = p.PlanDevices([]catalog.DeviceClass{catalog.DeviceGPU}, profile, Options{GPURequested: true})
	var gerr *GPUUnavailableError
	require.ErrorAs(t, err, &gerr)
}

func TestAMDGPUDeviceMappings(t *testing.T) {
	profile := &hardware.Profile{
		GPUVendor:      hardware.VendorAMD,
		ComputeBackend: hardware.BackendHIP,
	}
	p := testPolicy(nil, nil)

	plan, err := p.PlanDevices([]catalog.DeviceClass{catalog.DeviceGPU}, profile, Options{})
	require.NoError(t, err)
	assert.False(t, plan.GPU)

	hosts := []string{plan.Mappings[0].HostPath, plan.Mappings[1].HostPath}
	assert.ElementsMatch(t, []string{"/dev/kfd", "/dev/dri"}, hosts)
}

func TestGPUMappingsDoNotDefeatMockDetection(t *testing.T) {
	profile := &hardware.Profile{
		GPUVendor:      hardware.VendorAMD,
		ComputeBackend: hardware.BackendHIP,
	}
	p := testPolicy(nil, nil)
	required := []catalog.DeviceClass{catalog.DeviceGPU, catalog.DeviceSerial}

	plan, err := p.PlanDevices(required, profile, Options{})
	require.NoError(t, err)

	// The AMD nodes are mapped, but with no serial device the plan is
	// still mock for the physical hardware the backend cares about.
	assert.Equal(t, ModeMock, plan.Mode)
	assert.Equal(t, "true", plan.Env[EnvMockHardware])
}
