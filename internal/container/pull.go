package container

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"

	"github.com/getsolo/solo/internal/logger"
)

// ImageExists checks the local image cache through the docker CLI.
// The CLI is used instead of the API so the check honors whatever
// credential helpers and contexts the user has configured.
func ImageExists(ctx context.Context, imageName string) (bool, error) {
	if imageName == "" {
		return false, fmt.Errorf("image name cannot be empty")
	}

	cmd := exec.CommandContext(ctx, "docker", "images", "-q", imageName)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("failed to check Docker image: %w", err)
	}

	return len(strings.TrimSpace(string(output))) > 0, nil
}

// PullImage pulls an image through the docker CLI under a PTY so
// Docker's native layer progress bars stream through to the user's
// terminal. progress may be nil to discard output.
func PullImage(ctx context.Context, imageName string, progress io.Writer) error {
	if imageName == "" {
		return fmt.Errorf("image name cannot be empty")
	}

	logger.Info("Pulling image %s", imageName)

	cmd := exec.CommandContext(ctx, "docker", "pull", imageName)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("failed to start docker pull: %w", err)
	}
	defer ptmx.Close()

	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
			break
		}

		ptmx.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, readErr := ptmx.Read(buf)
		if n > 0 && progress != nil {
			progress.Write(buf[:n])
		}
		if readErr != nil {
			if timeoutErr, ok := readErr.(interface{ Timeout() bool }); ok && timeoutErr.Timeout() {
				continue
			}
			// EOF or the PTY closing when the process exits.
			break
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("image pull cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}

	logger.Info("Pulled image %s", imageName)

	return nil
}

// EnsureImage makes sure an image is available locally before a launch,
// pulling it when the local cache misses.
func EnsureImage(ctx context.Context, imageName string, progress io.Writer) error {
	exists, err := ImageExists(ctx, imageName)
	if err != nil {
		return err
	}
	if exists {
		logger.Debug("Image %s found locally", imageName)
		return nil
	}
	return PullImage(ctx, imageName, progress)
}
