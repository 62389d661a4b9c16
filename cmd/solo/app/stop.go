package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// StopOptions holds options for the stop command
type StopOptions struct {
	*GlobalOptions

	// Backend is the backend to stop; empty stops every managed backend
	Backend string
}

// NewStopCommand creates the stop command.
//
// Usage:
//
//	solo stop BACKEND
//	solo stop --all
func NewStopCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &StopOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "stop [BACKEND]",
		Short: "Stop a running backend",
		Long: `Stop a backend's container and remove it. With no argument, every
managed backend is stopped.

The backend gets a grace period to finish in-flight requests before the
container is killed. Model caches live on volumes and bind mounts, so a
stopped backend restarts quickly.`,
		Example: `  # Stop one backend
  solo stop ollama

  # Stop everything
  solo stop`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.Backend = args[0]
			}
			return runStop(cmd, opts)
		},
	}

	return cmd
}

// runStop executes the stop command logic
func runStop(cmd *cobra.Command, opts *StopOptions) error {
	ctx := cmd.Context()

	env, err := buildEnvironment(ctx, opts.GlobalOptions)
	if err != nil {
		return err
	}

	if opts.Backend == "" {
		if err := env.manager.StopAll(ctx); err != nil {
			return err
		}
		fmt.Println("Stopped all backends")
		return nil
	}

	if err := env.manager.Stop(ctx, opts.Backend); err != nil {
		return err
	}

	fmt.Printf("Stopped %s\n", opts.Backend)
	return nil
}
