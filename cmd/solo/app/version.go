package app

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build metadata, overridden at link time:
//
//	go build -ldflags "-X github.com/getsolo/solo/cmd/solo/app.version=..."
var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(globalOpts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("solo version %s\n", version)
			fmt.Printf("  Git Commit: %s\n", gitCommit)
			fmt.Printf("  Build Time: %s\n", buildTime)
			fmt.Printf("  Go Version: %s\n", runtime.Version())
			fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}

	return cmd
}
