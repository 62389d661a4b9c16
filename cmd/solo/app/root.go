// Package app implements the solo command-line interface.
//
// Commands are organized with cobra: a root command carrying global
// flags and one subcommand per operation (serve, status, stop, list,
// hardware). Each command builds its environment fresh; all durable
// state lives in container labels and the per-user session record.
package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getsolo/solo/internal/catalog"
	"github.com/getsolo/solo/internal/container"
	"github.com/getsolo/solo/internal/hardware"
	"github.com/getsolo/solo/internal/logger"
	"github.com/getsolo/solo/internal/orchestrator"
	"github.com/getsolo/solo/internal/state"
)

const (
	// cliName is the name of the CLI application
	cliName = "solo"

	// cliDescription is the short description shown in help text
	cliDescription = "solo - serve AI models in containers on your own hardware"
)

// GlobalOptions holds options that are common to all commands
type GlobalOptions struct {
	// ConfigDir overrides the default ~/.solo configuration directory
	ConfigDir string

	// Verbose enables debug logging
	Verbose bool
}

// NewSoloCommand creates the root solo command with all subcommands.
func NewSoloCommand() *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   cliName,
		Short: cliDescription,
		Long: `solo serves AI backends (ollama, vllm, llamacpp, lerobot) in Docker
containers, matched to the hardware it detects on your machine.

It profiles the host once (CPU, memory, GPU vendor and compute stack),
picks the right container image for that hardware, passes through the
devices each backend needs, and watches the container until it answers
its health check. Robotics backends degrade to simulated hardware when
no robot is attached.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetVerbose(opts.Verbose)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", "",
		"configuration directory (default: ~/.solo)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"verbose output")

	cmd.AddCommand(
		NewServeCommand(opts),
		NewStatusCommand(opts),
		NewStopCommand(opts),
		NewListCommand(opts),
		NewHardwareCommand(opts),
		NewVersionCommand(opts),
	)

	return cmd
}

// environment bundles everything a command needs: the config directory,
// the hardware profile, the catalog with machine overrides applied, the
// session record, and a manager already restored from the engine.
type environment struct {
	configDir string
	profile   *hardware.Profile
	catalog   *catalog.Catalog
	session   *state.Session
	manager   *orchestrator.Manager
}

// buildEnvironment assembles the command environment. The hardware
// profile is read from the session cache when present; detection only
// reruns on first use or an explicit refresh.
func buildEnvironment(ctx context.Context, opts *GlobalOptions) (*environment, error) {
	configDir := opts.ConfigDir
	if configDir == "" {
		dir, err := state.DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	session, err := state.Load(configDir)
	if err != nil {
		return nil, err
	}

	profile := session.Hardware
	if profile == nil {
		profile, err = detectAndCacheProfile(configDir, session)
		if err != nil {
			return nil, err
		}
	}

	cat := catalog.NewDefault()
	if err := cat.ApplyOverridesFile(configDir); err != nil {
		// A broken override file should not brick every command; the
		// built-in image tables still work.
		logger.Warn("Ignoring image overrides: %v", err)
	}

	runtime, err := container.NewDockerRuntime()
	if err != nil {
		return nil, fmt.Errorf("solo needs a running Docker daemon: %w", err)
	}

	manager := orchestrator.NewManager(runtime, cat, profile)
	if err := manager.Restore(ctx); err != nil {
		return nil, err
	}

	return &environment{
		configDir: configDir,
		profile:   profile,
		catalog:   cat,
		session:   session,
		manager:   manager,
	}, nil
}

// detectAndCacheProfile runs hardware detection and persists the result
// in the session record.
func detectAndCacheProfile(configDir string, session *state.Session) (*hardware.Profile, error) {
	profile, err := hardware.NewProfiler().Detect()
	if err != nil {
		return nil, err
	}

	session.Hardware = profile
	if err := state.Save(configDir, session); err != nil {
		logger.Warn("Failed to cache hardware profile: %v", err)
	}

	logger.Info("Detected hardware: %s, %d cores, %.0f GB RAM, gpu %s (%s)",
		profile.OS, profile.CPUCores, profile.MemoryGB, profile.GPUVendor, profile.ComputeBackend)

	return profile, nil
}
