package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newLogsCommand() *cobra.Command {
	var (
		operationID string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "logs PROJECT",
		Short: "Show the recorded event log for an operation",
		Long: `Print the durable event log recorded for an operation.

By default the project's most recent operation is shown; use --operation
to pick a specific one. The log is exactly what arrived on the stream,
heartbeats already coalesced.`,
		Example: `  # Log of the latest operation
  skylift logs my-project

  # Log of a specific operation
  skylift logs my-project --operation op-42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			opID := operationID
			if opID == "" {
				op, err := a.store.LatestOperation(ctx, args[0])
				if err != nil {
					return err
				}
				opID = op.ID
			}

			entries, err := a.store.ListLogEntries(ctx, opID, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(entries)
			}

			for _, entry := range entries {
				fmt.Printf("%s  %-18s %s\n", entry.Timestamp.Format(time.RFC3339), entry.Type, entry.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&operationID, "operation", "", "operation id (default: latest recorded)")
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum entries to show")

	return cmd
}
