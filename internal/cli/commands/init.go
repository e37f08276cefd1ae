package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/dsablate/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new dsablate project",
		Long: `Initialize a new dsablate project with a starter configuration.

This creates:
  - dsablate.yaml configuration file
  - datasets/alldata/images/ and datasets/alldata/labels/ for the corpus
  - .gitignore excluding partitions, runs and the state database`,
		Example: `  # Initialize in current directory
  dsablate init

  # Initialize in a new directory
  dsablate init my-ablation

  # Force overwrite existing config
  dsablate init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			mode := output.Mode(cfg.OutputFormat)
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "dsablate.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.New("dsablate.yaml already exists. Use --force to overwrite")
	}

	if err := copyTemplate("minimal", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("minimal")
	for _, f := range files {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("dsablate project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Put corpus images in datasets/alldata/images/ and labels in datasets/alldata/labels/")
	r.Println("  2. Point trainer.script in dsablate.yaml at your training script")
	r.Println("  3. Run 'dsablate experiment plan' to review the launches")
	r.Println("  4. Run 'dsablate experiment run'")

	return nil
}
