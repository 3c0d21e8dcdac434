package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate PROJECT",
		Short: "Validate a project's cloud credentials",
		Long: `Synchronously validate the cloud credentials configured for a project.

The backend runs its per-provider checks and reports each one. Run this
before apply to catch credential problems without starting an operation.`,
		Example: `  # Validate credentials
  skylift validate my-project`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			result, err := a.client.ValidateCredentials(ctx, args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(result)
			}

			for _, check := range result.Checks {
				mark := "ok"
				if !check.Passed {
					mark = "FAIL"
				}
				if check.Message != "" {
					fmt.Printf("  [%4s] %s: %s\n", mark, check.Name, check.Message)
				} else {
					fmt.Printf("  [%4s] %s\n", mark, check.Name)
				}
			}

			if !result.Valid {
				return fmt.Errorf("credential validation failed")
			}
			fmt.Println("Credentials are valid.")
			return nil
		},
	}

	return cmd
}
