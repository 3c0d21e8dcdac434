package commands

import (
	"github.com/spf13/cobra"

	"github.com/skylift/skylift/pkg/tracker"
)

func newApplyCommand() *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "apply PROJECT",
		Short: "Deploy a project's infrastructure",
		Long: `Start an apply operation for a project and follow it live.

The backend provisions the infrastructure from the project's plan; this
command tracks the deployment to its terminal phase and prints the
deployment outputs on success. Whether a plan must exist first is the
backend's rule, not enforced here.`,
		Example: `  # Deploy a project
  skylift apply my-project

  # Deploy with operation parameters
  skylift apply my-project --param region=us-central1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opParams, err := parseParams(params)
			if err != nil {
				return err
			}
			_, err = runOperation(cmd, args[0], tracker.KindApply, opParams)
			return err
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "operation parameter (key=value, repeatable)")

	return cmd
}
