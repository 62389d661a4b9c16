package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/getsolo/solo/internal/catalog"
)

// ListOptions holds options for the list command
type ListOptions struct {
	*GlobalOptions
}

// NewListCommand creates the list command.
//
// Usage:
//
//	solo list
func NewListCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &ListOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the available backends",
		Long: `List every backend solo can serve, with the defaults and the
container image that would be launched on this machine's hardware.

Images can be overridden per machine by editing images.yaml in the
config directory; the recommended backend for this hardware is marked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}

	return cmd
}

// runList executes the list command logic
func runList(cmd *cobra.Command, opts *ListOptions) error {
	env, err := buildEnvironment(cmd.Context(), opts.GlobalOptions)
	if err != nil {
		return err
	}

	recommended := catalog.Recommend(env.profile)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"BACKEND", "DEFAULT MODEL", "PORT", "IMAGE", "DEVICES"})

	for _, d := range env.catalog.List() {
		image, err := d.ImageFor(env.profile.GPUVendor)
		if err != nil {
			image = "-"
		}

		deviceClasses := make([]string, 0, len(d.RequiredDevices))
		for _, class := range d.RequiredDevices {
			deviceClasses = append(deviceClasses, string(class))
		}
		devicesCell := strings.Join(deviceClasses, ", ")
		if devicesCell == "" {
			devicesCell = "-"
		}

		name := d.ID
		if d.ID == recommended {
			name += " *"
		}

		t.AppendRow(table.Row{name, d.DefaultModel, d.DefaultPort, image, devicesCell})
	}

	t.Render()

	if cached := cachedModels(); len(cached) > 0 {
		fmt.Println("\nCached models:")
		for _, m := range cached {
			fmt.Printf("  %s\n", m)
		}
	}

	return nil
}

// cachedModels lists models already downloaded to the Hugging Face hub
// cache, which the vllm and llamacpp containers mount. Models pulled by
// ollama live inside its named volume and are not visible here.
func cachedModels() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	entries, err := os.ReadDir(filepath.Join(home, ".cache", "huggingface", "hub"))
	if err != nil {
		return nil
	}

	var models []string
	for _, e := range entries {
		name, found := strings.CutPrefix(e.Name(), "models--")
		if !found || !e.IsDir() {
			continue
		}
		models = append(models, strings.ReplaceAll(name, "--", "/"))
	}
	sort.Strings(models)
	return models
}
