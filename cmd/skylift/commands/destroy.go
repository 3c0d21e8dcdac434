package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skylift/skylift/pkg/tracker"
)

func newDestroyCommand() *cobra.Command {
	var (
		params      []string
		autoApprove bool
	)

	cmd := &cobra.Command{
		Use:   "destroy PROJECT",
		Short: "Tear down a project's infrastructure",
		Long: `Start a destroy operation for a project and follow it live.

Destruction is irreversible, so the command prompts for confirmation
unless --auto-approve is given.`,
		Example: `  # Destroy with confirmation prompt
  skylift destroy my-project

  # Destroy without prompting
  skylift destroy my-project --auto-approve`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := args[0]
			if !autoApprove {
				ok, err := confirm(fmt.Sprintf("Destroy all infrastructure for %q?", subject))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Destroy cancelled.")
					return nil
				}
			}

			opParams, err := parseParams(params)
			if err != nil {
				return err
			}
			_, err = runOperation(cmd, subject, tracker.KindDestroy, opParams)
			return err
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "operation parameter (key=value, repeatable)")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip confirmation prompt")

	return cmd
}

// confirm asks a yes/no question on stdin.
func confirm(question string) (bool, error) {
	fmt.Printf("%s Only 'yes' will be accepted: ", question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.TrimSpace(answer) == "yes", nil
}
