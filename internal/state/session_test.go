package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getsolo/solo/internal/hardware"
)

func TestLoadMissingFileYieldsEmptySession(t *testing.T) {
	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, s.Backend)
	assert.Nil(t, s.Hardware)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	in := &Session{
		Hardware: &hardware.Profile{
			OS:             "linux",
			CPUCores:       8,
			GPUVendor:      hardware.VendorNvidia,
			ComputeBackend: hardware.BackendCUDA,
		},
		Backend:  "vllm",
		Model:    "meta-llama/Llama-3.2-1B-Instruct",
		Port:     8000,
		LastUsed: time.Now().Truncate(time.Second),
	}
	require.NoError(t, Save(dir, in))

	out, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, in.Backend, out.Backend)
	assert.Equal(t, in.Port, out.Port)
	assert.Equal(t, hardware.VendorNvidia, out.Hardware.GPUVendor)
	assert.True(t, in.LastUsed.Equal(out.LastUsed))
}

func TestLoadCorruptFileFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SessionFileName), []byte("{not json"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, &Session{Backend: "ollama"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, SessionFileName, entries[0].Name())
}
