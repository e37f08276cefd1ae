package commands

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/leapstack-labs/dsablate/internal/cli/output"
	"github.com/leapstack-labs/dsablate/internal/degrade"
	"github.com/leapstack-labs/dsablate/internal/experiment"
	"github.com/leapstack-labs/dsablate/internal/trainer"
	"github.com/spf13/cobra"
)

// ExperimentOptions holds overrides shared by the experiment subcommands.
type ExperimentOptions struct {
	Seeds       []int64
	Qualities   []int
	Concurrency int
}

// NewExperimentCommand creates the experiment command group.
func NewExperimentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Plan and run quality ablation experiments",
		Long: `Plan and run quality ablation experiments.

For every seed the corpus is partitioned, the reference partitions are
trained, and then each JPEG quality variant is degraded and trained. Every
trainer launch is recorded in the state database.`,
	}

	cmd.AddCommand(newExperimentRunCommand())
	cmd.AddCommand(newExperimentPlanCommand())
	return cmd
}

func addExperimentFlags(cmd *cobra.Command, opts *ExperimentOptions) {
	cmd.Flags().Int64SliceVar(&opts.Seeds, "seed", nil, "Seed to run (repeatable, default from config)")
	cmd.Flags().IntSliceVarP(&opts.Qualities, "quality", "q", nil, "JPEG quality variant (repeatable, default from config)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "Seeds to run in parallel (default from config)")
}

func newExperimentRunCommand() *cobra.Command {
	opts := &ExperimentOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an experiment",
		Example: `  # Run the configured experiment
  dsablate experiment run

  # Run two seeds with a single degraded variant
  dsablate experiment run --seed 1 --seed 2 --quality 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExperiment(cmd, opts)
		},
	}
	addExperimentFlags(cmd, opts)
	return cmd
}

func newExperimentPlanCommand() *cobra.Command {
	opts := &ExperimentOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the trainer launches an experiment would make",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExperimentPlan(cmd, opts)
		},
	}
	addExperimentFlags(cmd, opts)
	return cmd
}

// buildSetup merges the loaded config with command line overrides.
func buildSetup(cmdCtx *CommandContext, opts *ExperimentOptions) (experiment.Setup, error) {
	cfg := *cmdCtx.Cfg
	if len(opts.Seeds) > 0 {
		cfg.Experiment.Seeds = opts.Seeds
	}
	if len(opts.Qualities) > 0 {
		cfg.Experiment.Qualities = opts.Qualities
	}
	if opts.Concurrency > 0 {
		cfg.Experiment.Concurrency = opts.Concurrency
	}
	if err := cfg.ValidateExperiment(); err != nil {
		return experiment.Setup{}, fmt.Errorf("invalid configuration: %w", err)
	}

	modifiers := make([]*degrade.Modifier, 0, len(cfg.Experiment.Qualities))
	for _, q := range cfg.Experiment.Qualities {
		modifiers = append(modifiers, degrade.NewJPEG(q, cmdCtx.Logger))
	}

	return experiment.Setup{
		Name:        cfg.Experiment.Name,
		CorpusDir:   cfg.CorpusDir,
		DestDir:     cfg.DestDir,
		OutputDir:   cfg.Experiment.OutputDir,
		ValRatio:    cfg.ValRatio,
		Seeds:       cfg.Experiment.Seeds,
		Modifiers:   modifiers,
		Repetitions: cfg.Experiment.Repetitions,
		ExtraParams: cfg.Experiment.ExtraParams,
		Concurrency: cfg.Experiment.Concurrency,
	}, nil
}

func runExperiment(cmd *cobra.Command, opts *ExperimentOptions) error {
	cmdCtx, cleanup, err := NewCommandContextWithStore(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	setup, err := buildSetup(cmdCtx, opts)
	if err != nil {
		return err
	}

	tc := cmdCtx.Cfg.Trainer
	runner, err := experiment.NewRunner(experiment.Config{
		Partition: cmdCtx.PartitionConfig(),
		Trainer: &trainer.Task{
			Interpreter: tc.Interpreter,
			Script:      tc.Script,
			Devices:     tc.Devices,
			Env:         tc.Env,
			WorkDir:     tc.WorkDir,
			Logger:      cmdCtx.Logger,
		},
		Tracker: cmdCtx.Store,
		Logger:  cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	report, runErr := runner.Execute(cmd.Context(), setup)
	if report == nil {
		return runErr
	}

	if err := renderReport(cmdCtx.Renderer, report); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("experiment %s finished with errors: %w", setup.Name, runErr)
	}
	return nil
}

func renderReport(r *output.Renderer, report *experiment.Report) error {
	seeds := make([]output.SeedSummary, 0, len(report.Seeds))
	for _, s := range report.Seeds {
		summary := output.SeedSummary{Seed: s.Seed, Runs: s.Runs, Failed: s.Failed}
		for _, e := range s.Errors {
			summary.Errors = append(summary.Errors, e.Error())
		}
		seeds = append(seeds, summary)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(output.ExperimentOutput{
			Experiment: report.Experiment,
			Runs:       report.Runs(),
			Failed:     report.Failed(),
			Seeds:      seeds,
		})
	}

	r.Header(1, "Experiment "+report.Experiment)
	for _, s := range seeds {
		status := "completed"
		detail := fmt.Sprintf("(%d runs)", s.Runs)
		if len(s.Errors) > 0 {
			status = "failed"
			detail = fmt.Sprintf("(%d runs, %d failed)", s.Runs, s.Failed)
		}
		r.StatusLine("seed "+strconv.FormatInt(s.Seed, 10), status, detail)
		for _, e := range s.Errors {
			r.Muted("    " + firstLine(e))
		}
	}
	r.Println("")
	r.KeyValue("Runs", strconv.Itoa(report.Runs()))
	r.KeyValue("Failed", strconv.Itoa(report.Failed()))
	return nil
}

func runExperimentPlan(cmd *cobra.Command, opts *ExperimentOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	setup, err := buildSetup(cmdCtx, opts)
	if err != nil {
		return err
	}
	if err := setup.Validate(); err != nil {
		return fmt.Errorf("invalid experiment: %w", err)
	}

	variants := []string{experiment.ReferenceVariant}
	for _, m := range setup.Modifiers {
		variants = append(variants, m.Name())
	}
	grid := experiment.Grid(setup.ExtraParams)
	reps := max(setup.Repetitions, 1)

	type launch struct {
		Seed       int64             `json:"seed"`
		Variant    string            `json:"variant"`
		Repetition int               `json:"repetition"`
		GridIndex  int               `json:"grid_index"`
		Params     map[string]string `json:"params,omitempty"`
		OutputPath string            `json:"output_path"`
	}
	var launches []launch
	for _, seed := range setup.Seeds {
		for _, v := range variants {
			for rep := range reps {
				for gi, params := range grid {
					launches = append(launches, launch{
						Seed:       seed,
						Variant:    v,
						Repetition: rep,
						GridIndex:  gi,
						Params:     params,
						OutputPath: setup.OutputPath(seed, v, rep, gi),
					})
				}
			}
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(launches)
	}

	r.Header(1, fmt.Sprintf("Experiment %s: %d launches", setup.Name, len(launches)))
	rows := make([][]string, 0, len(launches))
	for _, l := range launches {
		rows = append(rows, []string{
			strconv.FormatInt(l.Seed, 10),
			l.Variant,
			strconv.Itoa(l.Repetition),
			formatParams(l.Params),
			l.OutputPath,
		})
	}
	r.Table([]string{"Seed", "Variant", "Rep", "Params", "Output"}, rows)
	return nil
}

func formatParams(params map[string]string) string {
	parts := make([]string, 0, len(params))
	for _, k := range slices.Sorted(maps.Keys(params)) {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, " ")
}

func firstLine(err string) string {
	if i := strings.IndexByte(err, '\n'); i >= 0 {
		return err[:i]
	}
	return err
}
