package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skylift/skylift/pkg/tracker"
)

func newGenerateCommand() *cobra.Command {
	var (
		params []string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "generate PROJECT",
		Short: "Run AI-assisted infrastructure generation",
		Long: `Start a generation operation for a project and follow it live.

The backend analyzes the project's repository and generates its
infrastructure code. This command tracks the workflow through analysis,
generation, and commit, streams the analysis text as it arrives, and can
write the generated files to a local directory.`,
		Example: `  # Generate infrastructure code
  skylift generate my-project

  # Generate and write the files locally
  skylift generate my-project --out ./infra`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opParams, err := parseParams(params)
			if err != nil {
				return err
			}

			state, err := runOperation(cmd, args[0], tracker.KindGenerate, opParams)
			if err != nil {
				return err
			}

			if outDir != "" && len(state.Result.Files) > 0 {
				if err := writeGeneratedFiles(outDir, state.Result.Files); err != nil {
					return err
				}
				fmt.Printf("\nWrote %d files to %s\n", len(state.Result.Files), outDir)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "operation parameter (key=value, repeatable)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "write generated files to this directory")

	return cmd
}

// writeGeneratedFiles writes generated artifacts under dir, creating
// subdirectories as needed. Paths are kept relative to dir.
func writeGeneratedFiles(dir string, files map[string]string) error {
	for path, content := range files {
		target := filepath.Join(dir, filepath.Clean("/"+path))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(target, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
