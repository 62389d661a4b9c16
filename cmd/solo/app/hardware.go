package app

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/getsolo/solo/internal/catalog"
	"github.com/getsolo/solo/internal/state"
)

// HardwareOptions holds options for the hardware command
type HardwareOptions struct {
	*GlobalOptions

	// Refresh re-runs detection instead of using the cached profile
	Refresh bool
}

// NewHardwareCommand creates the hardware command.
//
// Usage:
//
//	solo hardware [--refresh]
func NewHardwareCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &HardwareOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "hardware",
		Short: "Show the detected hardware profile",
		Long: `Show the hardware profile solo uses to pick images and backends.

The profile is detected once and cached; pass --refresh after changing
hardware or installing GPU drivers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHardware(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "re-run hardware detection")

	return cmd
}

// runHardware executes the hardware command logic. It deliberately does
// not touch Docker, so the profile is inspectable before the daemon is
// set up.
func runHardware(opts *HardwareOptions) error {
	configDir := opts.ConfigDir
	if configDir == "" {
		dir, err := state.DefaultConfigDir()
		if err != nil {
			return err
		}
		configDir = dir
	}

	session, err := state.Load(configDir)
	if err != nil {
		return err
	}

	profile := session.Hardware
	if profile == nil || opts.Refresh {
		profile, err = detectAndCacheProfile(configDir, session)
		if err != nil {
			return err
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"OS", profile.OS},
		{"CPU", profile.CPUModel},
		{"Cores", profile.CPUCores},
		{"Memory", fmt.Sprintf("%.1f GB", profile.MemoryGB)},
	})

	if profile.HasGPU() {
		t.AppendRows([]table.Row{
			{"GPU vendor", profile.GPUVendor},
			{"GPU model", profile.GPUModel},
		})
		if profile.GPUMemoryMB > 0 {
			t.AppendRow(table.Row{"GPU memory", fmt.Sprintf("%d MB", profile.GPUMemoryMB)})
		}
	} else {
		t.AppendRow(table.Row{"GPU", "none detected"})
	}
	t.AppendRow(table.Row{"Compute", profile.ComputeBackend})
	t.AppendRow(table.Row{"Recommended backend", catalog.Recommend(profile)})

	t.Render()
	return nil
}
