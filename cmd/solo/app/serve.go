package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/getsolo/solo/internal/catalog"
	"github.com/getsolo/solo/internal/devices"
	"github.com/getsolo/solo/internal/orchestrator"
	"github.com/getsolo/solo/internal/state"
)

// ServeOptions holds options for the serve command
type ServeOptions struct {
	*GlobalOptions

	// Backend is the backend to serve (recommended from hardware when empty)
	Backend string

	// Model overrides the backend's default model
	Model string

	// Port overrides the backend's default host port
	Port int

	// GPU explicitly requests GPU passthrough
	GPU bool

	// MockHardware forces simulated hardware when set
	MockHardware *bool

	// SerialPort overrides serial device enumeration
	SerialPort string

	// Timeout bounds the wait for the backend to become healthy
	Timeout time.Duration
}

// NewServeCommand creates the serve command.
//
// Usage:
//
//	solo serve [BACKEND] [OPTIONS]
//
// When BACKEND is omitted, the last served backend is reused, falling
// back to a recommendation from the detected hardware.
func NewServeCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &ServeOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "serve [BACKEND]",
		Short: "Launch an AI serving backend in a container",
		Long: `Launch a backend server in a Docker container and wait until it is
healthy.

The container image is chosen for the detected GPU vendor, required
host devices are passed through, and the command blocks until the
backend answers its health endpoint. Robotics backends fall back to
simulated hardware when no robot is attached.`,
		Example: `  # Serve the backend recommended for this machine
  solo serve

  # Serve ollama with a specific model
  solo serve ollama --model qwen2.5:3b

  # Serve vllm on a custom port with GPU passthrough
  solo serve vllm --port 9000 --gpu

  # Serve lerobot against simulated hardware
  solo serve lerobot --mock-hardware`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.Backend = args[0]
			}
			if cmd.Flags().Changed("mock-hardware") {
				v, _ := cmd.Flags().GetBool("mock-hardware")
				opts.MockHardware = &v
			}
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "",
		"model to serve (default: backend's default model)")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0,
		"host port to publish (default: backend's default port)")
	cmd.Flags().BoolVar(&opts.GPU, "gpu", false,
		"require GPU passthrough (fails when unavailable)")
	cmd.Flags().Bool("mock-hardware", false,
		"run against simulated hardware instead of attached devices")
	cmd.Flags().StringVar(&opts.SerialPort, "serial-port", "",
		"serial device to pass through (default: auto-detected)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0,
		"health check timeout (default: 60s)")

	return cmd
}

// runServe executes the serve command logic
func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx := cmd.Context()

	env, err := buildEnvironment(ctx, opts.GlobalOptions)
	if err != nil {
		return err
	}

	backend := opts.Backend
	if backend == "" {
		backend = env.session.Backend
	}
	if backend == "" {
		backend = catalog.Recommend(env.profile)
		fmt.Printf("No backend specified; recommending %s for this machine\n", backend)
	}

	if opts.Timeout > 0 {
		env.manager.SetHealthTimeout(opts.Timeout)
	}

	rec, err := env.manager.Start(ctx, backend, orchestrator.Overrides{
		Model:        opts.Model,
		Port:         opts.Port,
		GPU:          opts.GPU,
		MockHardware: opts.MockHardware,
		SerialPort:   opts.SerialPort,
	})
	if err != nil {
		return serveError(backend, err)
	}

	env.session.Backend = rec.Backend
	env.session.Model = rec.Model
	env.session.Port = rec.Port
	env.session.LastUsed = time.Now()
	if err := state.Save(env.configDir, env.session); err != nil {
		return err
	}

	fmt.Printf("%s is serving %s on http://localhost:%d", rec.Backend, rec.Model, rec.Port)
	if rec.Mode == devices.ModeMock {
		fmt.Print(" (mock hardware)")
	}
	fmt.Println()

	return nil
}

// serveError attaches a remediation hint to the launch failures users
// can act on.
func serveError(backend string, err error) error {
	var (
		portErr    *orchestrator.PortConflictError
		gpuErr     *devices.GPUUnavailableError
		healthErr  *orchestrator.HealthCheckTimeoutError
		unknownErr *catalog.UnknownBackendError
	)
	switch {
	case errors.As(err, &portErr):
		return fmt.Errorf("%w\nStop the other backend first ('solo stop %s') or pick another port with --port",
			err, portErr.Backend)
	case errors.As(err, &gpuErr):
		return fmt.Errorf("%w\nDrop --gpu to serve on CPU instead", err)
	case errors.As(err, &healthErr):
		return fmt.Errorf("%w\nThe container was left running; inspect it with 'docker logs solo-%s'",
			err, backend)
	case errors.As(err, &unknownErr):
		return fmt.Errorf("%w\nRun 'solo list' to see the available backends", err)
	default:
		return err
	}
}
