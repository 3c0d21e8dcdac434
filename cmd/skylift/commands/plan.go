package commands

import (
	"github.com/spf13/cobra"

	"github.com/skylift/skylift/pkg/tracker"
)

func newPlanCommand() *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "plan PROJECT",
		Short: "Generate an infrastructure plan",
		Long: `Start a plan operation for a project and follow it live.

The backend generates the execution plan; this command tracks the
operation through validating and planning until the plan is ready, then
prints the rendered plan output. Everything observed is recorded in the
local operation history.`,
		Example: `  # Plan a project
  skylift plan my-project

  # Plan with operation parameters
  skylift plan my-project --param region=us-central1

  # Machine-readable progress
  skylift plan my-project --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opParams, err := parseParams(params)
			if err != nil {
				return err
			}
			_, err = runOperation(cmd, args[0], tracker.KindPlan, opParams)
			return err
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "operation parameter (key=value, repeatable)")

	return cmd
}
