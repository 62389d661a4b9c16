package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/getsolo/solo/internal/orchestrator"
)

// StatusOptions holds options for the status command
type StatusOptions struct {
	*GlobalOptions

	// Backend limits the report to one backend
	Backend string
}

// NewStatusCommand creates the status command.
//
// Usage:
//
//	solo status [BACKEND]
//
// Without an argument, all managed backends are listed.
func NewStatusCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &StatusOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "status [BACKEND]",
		Short: "Show the state of managed backends",
		Long: `Show each managed backend's state, model, port, and uptime.

The report is reconciled with the container engine before printing, so
a backend whose container died since the last command shows up as
unhealthy here.`,
		Example: `  # All backends
  solo status

  # One backend
  solo status ollama`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.Backend = args[0]
			}
			return runStatus(cmd, opts)
		},
	}

	return cmd
}

// runStatus executes the status command logic
func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	ctx := cmd.Context()

	env, err := buildEnvironment(ctx, opts.GlobalOptions)
	if err != nil {
		return err
	}

	var records []*orchestrator.Record
	if opts.Backend != "" {
		rec, err := env.manager.Status(ctx, opts.Backend)
		if err != nil {
			var nerr *orchestrator.NotRunningError
			if errors.As(err, &nerr) {
				fmt.Printf("Backend %s is not running\n", opts.Backend)
				return nil
			}
			return err
		}
		records = append(records, rec)
	} else {
		records = env.manager.List(ctx)
		if len(records) == 0 {
			fmt.Println("No backends are running. Start one with 'solo serve'.")
			return nil
		}
	}

	renderStatusTable(records)
	return nil
}

func renderStatusTable(records []*orchestrator.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"BACKEND", "MODEL", "PORT", "STATE", "HARDWARE", "UPTIME"})

	for _, rec := range records {
		uptime := "-"
		if rec.State == orchestrator.StateRunning && !rec.StartedAt.IsZero() {
			uptime = time.Since(rec.StartedAt).Round(time.Second).String()
		}
		stateCell := string(rec.State)
		if rec.State == orchestrator.StateUnhealthy && rec.Error != "" {
			stateCell = fmt.Sprintf("%s (%s)", rec.State, rec.Error)
		}
		t.AppendRow(table.Row{rec.Backend, rec.Model, rec.Port, stateCell, rec.Mode, uptime})
	}

	t.Render()
}
