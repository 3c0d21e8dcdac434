package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skylift/skylift/pkg/telemetry"
)

func newStatusCommand() *cobra.Command {
	var (
		history   int
		showFiles bool
	)

	cmd := &cobra.Command{
		Use:   "status PROJECT",
		Short: "Show a project's current status",
		Long: `Fetch the project's resting status from the backend and map it onto
the phase model, without opening a stream.

When the backend is unreachable the status is reported as unknown rather
than guessed. With --history the locally recorded operations are listed
as well.`,
		Example: `  # Current status
  skylift status my-project

  # Status plus the last five recorded operations
  skylift status my-project --history 5

  # Status plus files from the last generation
  skylift status my-project --files`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			subject := args[0]

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			trk, err := a.newTracker(subject)
			if err != nil {
				return err
			}

			_, span := a.tracer.StartReconcileSpan(ctx, subject)
			defer span.End()

			state, err := trk.Reconcile(ctx)
			if err != nil {
				telemetry.RecordError(span, err)
				a.logger.WithError(err).Warn("Status fetch failed; reporting unknown")
			} else {
				telemetry.RecordSuccess(span)
			}

			if jsonOutput {
				if err := json.NewEncoder(os.Stdout).Encode(state); err != nil {
					return err
				}
			} else {
				fmt.Printf("Project:  %s\n", subject)
				fmt.Printf("Phase:    %s\n", state.Phase)
				if state.Progress >= 0 {
					fmt.Printf("Progress: %d%%\n", state.Progress)
				}
				if state.Message != "" {
					fmt.Printf("Status:   %s\n", state.Message)
				}
				if state.Error != "" {
					fmt.Printf("Error:    %s\n", state.Error)
				}
				for _, key := range sortedKeys(state.Result.Outputs) {
					fmt.Printf("  %s = %s\n", key, state.Result.Outputs[key])
				}
			}

			if history > 0 {
				if err := printHistory(cmd, a, subject, history); err != nil {
					return err
				}
			}
			if showFiles {
				if err := printGeneratedFiles(cmd, a, subject); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&history, "history", 0, "also list the last N recorded operations")
	cmd.Flags().BoolVar(&showFiles, "files", false, "also list files from the last generation")

	return cmd
}

// printGeneratedFiles lists the artifacts recorded for the subject's most
// recent operation, surviving long after the stream closed.
func printGeneratedFiles(cmd *cobra.Command, a *app, subject string) error {
	ctx := cmd.Context()
	op, err := a.store.LatestOperation(ctx, subject)
	if err != nil {
		return err
	}
	files, err := a.store.ListGeneratedFiles(ctx, op.ID)
	if err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(files)
	}

	if len(files) == 0 {
		fmt.Println("\nNo recorded generated files.")
		return nil
	}
	fmt.Printf("\nGenerated files (operation %s):\n", op.ID)
	for _, file := range files {
		fmt.Printf("  %s (%d bytes)\n", file.Path, len(file.Content))
	}
	return nil
}

// printHistory lists locally recorded operations for the subject.
func printHistory(cmd *cobra.Command, a *app, subject string, limit int) error {
	ops, err := a.store.ListOperations(cmd.Context(), subject, limit, 0)
	if err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(ops)
	}

	if len(ops) == 0 {
		fmt.Println("\nNo recorded operations.")
		return nil
	}
	fmt.Println("\nRecent operations:")
	for _, op := range ops {
		line := fmt.Sprintf("  %s  %-8s %-9s %s", op.StartedAt.Format("2006-01-02 15:04"), op.Kind, op.Status, op.ID)
		if op.Error != nil {
			line += fmt.Sprintf("  (%s)", *op.Error)
		}
		fmt.Println(line)
	}
	return nil
}
