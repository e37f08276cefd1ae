package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leapstack-labs/dsablate/internal/cli/output"
	"github.com/leapstack-labs/dsablate/internal/dataset"
	"github.com/leapstack-labs/dsablate/internal/degrade"
	"github.com/leapstack-labs/dsablate/internal/experiment"
	"github.com/spf13/cobra"
)

// DegradeOptions holds options for the degrade command.
type DegradeOptions struct {
	Qualities    []int
	Source       string
	ModifiedRoot string
}

// NewDegradeCommand creates the degrade command.
func NewDegradeCommand() *cobra.Command {
	opts := &DegradeOptions{}

	cmd := &cobra.Command{
		Use:   "degrade [partition-dir]",
		Short: "Write JPEG-degraded copies of a partition or image directory",
		Long: `Write JPEG-degraded copies of images, one per quality.

With a partition directory argument, each quality produces a sibling
<partition-dir>#jpg<q>_modifier with degraded images/, the original labels/
and an empty annotations.json.

With --source and --modified-root, every file of the source directory is
degraded into <modified-root>/<base of source>.

Up-to-date outputs are skipped.`,
		Example: `  # Degrade a validation partition at the configured qualities
  dsablate degrade datasets/val47625

  # Degrade a single image directory at quality 10
  dsablate degrade --quality 10 --source datasets/val1/images --modified-root /tmp/out`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("quality") {
				opts.Qualities = getConfig().Experiment.Qualities
			}
			partitionDir := ""
			if len(args) > 0 {
				partitionDir = args[0]
			}
			return runDegrade(cmd, opts, partitionDir)
		},
	}

	cmd.Flags().IntSliceVarP(&opts.Qualities, "quality", "q", nil, "JPEG quality to apply (repeatable, default from config)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "Image directory to degrade")
	cmd.Flags().StringVar(&opts.ModifiedRoot, "modified-root", "", "Parent directory of the degraded copy")
	cmd.MarkFlagsRequiredTogether("source", "modified-root")

	return cmd
}

func runDegrade(cmd *cobra.Command, opts *DegradeOptions, partitionDir string) error {
	if partitionDir != "" && opts.Source != "" {
		return errors.New("pass either a partition directory or --source, not both")
	}
	if partitionDir == "" && opts.Source == "" {
		return errors.New("a partition directory or --source is required")
	}
	if len(opts.Qualities) == 0 {
		return errors.New("at least one --quality is required")
	}

	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	ctx := cmd.Context()

	results := make([]output.DegradeResult, 0, len(opts.Qualities))
	for _, q := range opts.Qualities {
		m := degrade.NewJPEG(q, cmdCtx.Logger)
		res := output.DegradeResult{
			Modifier: m.Name(),
			Quality:  q,
			Stages:   m.Pipeline().Names(),
		}

		if partitionDir != "" {
			abs, err := filepath.Abs(partitionDir)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", partitionDir, err)
			}
			desc := dataset.NewDescriptor(abs)
			out, err := experiment.Materialize(ctx, m, desc)
			if err != nil {
				return err
			}
			res.Source = desc.DataPath
			res.Output = out.DataPath
		} else {
			name, err := m.Apply(ctx, opts.Source, opts.ModifiedRoot)
			if err != nil {
				return fmt.Errorf("failed to degrade %s: %w", opts.Source, err)
			}
			res.Source = opts.Source
			res.Output = filepath.Join(opts.ModifiedRoot, name)
		}
		results = append(results, res)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(output.DegradeOutput{Modifiers: results})
	}

	r.Header(1, fmt.Sprintf("Degraded copies (%d)", len(results)))
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		rows = append(rows, []string{res.Modifier, strconv.Itoa(res.Quality), strings.Join(res.Stages, " -> "), res.Output})
	}
	r.Table([]string{"Modifier", "Quality", "Stages", "Output"}, rows)
	return nil
}
