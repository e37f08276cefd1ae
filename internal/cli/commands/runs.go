package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/dsablate/internal/cli/output"
	"github.com/leapstack-labs/dsablate/internal/state"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command group.
func NewRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded trainer launches",
	}
	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())
	return cmd
}

func newRunsListCommand() *cobra.Command {
	var filter state.RunFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded trainer launches, newest first",
		Example: `  # Show the last 20 launches of an experiment
  dsablate runs list --experiment ablation --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRunsList(cmd, filter)
		},
	}

	cmd.Flags().StringVar(&filter.Experiment, "experiment", "", "Only show runs of this experiment")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum number of runs to show (0 for all)")
	return cmd
}

func newRunsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded trainer launch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(cmd, args[0])
		},
	}
}

func runRunsList(cmd *cobra.Command, filter state.RunFilter) error {
	cmdCtx, cleanup, err := NewCommandContextWithStore(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r := cmdCtx.Renderer

	runs, err := cmdCtx.Store.ListRuns(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		out := output.RunsOutput{Runs: make([]output.RunInfo, 0, len(runs)), Total: len(runs)}
		for _, run := range runs {
			out.Runs = append(out.Runs, runInfo(run))
		}
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Runs (%d)", len(runs)))
	if len(runs) == 0 {
		r.Muted("No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			run.Experiment,
			strconv.FormatInt(run.Seed, 10),
			run.Variant,
			strconv.Itoa(run.Repetition),
			output.StatusLabel(string(run.Status)),
			run.StartedAt.Local().Format(time.DateTime),
			formatDuration(run),
		})
	}
	r.Table([]string{"ID", "Experiment", "Seed", "Variant", "Rep", "Status", "Started", "Duration"}, rows)
	return nil
}

func runRunsShow(cmd *cobra.Command, id string) error {
	cmdCtx, cleanup, err := NewCommandContextWithStore(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r := cmdCtx.Renderer

	run, err := cmdCtx.Store.GetRun(cmd.Context(), id)
	if errors.Is(err, state.ErrRunNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(runInfo(run))
	}

	r.Header(1, "Run "+run.ID)
	r.KeyValue("Experiment", run.Experiment)
	r.KeyValue("Seed", strconv.FormatInt(run.Seed, 10))
	r.KeyValue("Variant", run.Variant)
	r.KeyValue("Repetition", strconv.Itoa(run.Repetition))
	r.KeyValue("Grid point", strconv.Itoa(run.GridIndex))
	if len(run.Params) > 0 {
		r.KeyValue("Params", formatParams(run.Params))
	}
	r.KeyValue("Output", run.OutputPath)
	r.KeyValue("Status", output.StatusLabel(string(run.Status)))
	r.KeyValue("Started", run.StartedAt.Local().Format(time.DateTime))
	if run.CompletedAt != nil {
		r.KeyValue("Duration", formatDuration(run))
	}
	if run.Error != "" {
		r.KeyValue("Error", run.Error)
	}
	return nil
}

func runInfo(run *state.Run) output.RunInfo {
	return output.RunInfo{
		ID:          run.ID,
		Experiment:  run.Experiment,
		Seed:        run.Seed,
		Variant:     run.Variant,
		Repetition:  run.Repetition,
		GridIndex:   run.GridIndex,
		Params:      run.Params,
		OutputPath:  run.OutputPath,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(run *state.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
