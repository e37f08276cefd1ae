package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/dsablate/internal/dataset"
	"github.com/leapstack-labs/dsablate/internal/degrade"
	"github.com/leapstack-labs/dsablate/internal/partition"
	"github.com/leapstack-labs/dsablate/internal/state"
	"github.com/leapstack-labs/dsablate/internal/trainer"
)

// ReferenceVariant names the undegraded partitions.
const ReferenceVariant = "reference"

// Trainer launches one training job.
type Trainer interface {
	Execute(ctx context.Context, req trainer.Request) (*trainer.Result, error)
}

// Tracker records trainer launches.
type Tracker interface {
	CreateRun(ctx context.Context, spec state.RunSpec) (*state.Run, error)
	CompleteRun(ctx context.Context, id string, status state.RunStatus, errMsg string) error
}

// Setup describes one experiment.
type Setup struct {
	Name        string
	CorpusDir   string
	DestDir     string // Parent of the partition directories
	OutputDir   string // Root of trainer output paths
	ValRatio    float64
	Seeds       []int64
	Modifiers   []*degrade.Modifier
	Repetitions int
	ExtraParams map[string][]string
	Concurrency int // Seeds run in parallel when greater than one
}

// Validate checks the setup for missing required fields.
func (s *Setup) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("experiment name is required"))
	}
	if s.CorpusDir == "" {
		errs = append(errs, errors.New("corpus directory is required"))
	}
	if s.DestDir == "" {
		errs = append(errs, errors.New("destination directory is required"))
	}
	if s.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if len(s.Seeds) == 0 {
		errs = append(errs, errors.New("at least one seed is required"))
	}
	if _, err := partition.SplitIndex(0, s.ValRatio); err != nil {
		errs = append(errs, fmt.Errorf("%w: got %v", err, s.ValRatio))
	}
	return errors.Join(errs...)
}

func (s *Setup) repetitions() int {
	if s.Repetitions < 1 {
		return 1
	}
	return s.Repetitions
}

// OutputPath returns the trainer output path of one launch.
func (s *Setup) OutputPath(seed int64, variant string, rep, gridIndex int) string {
	return filepath.Join(s.OutputDir, s.Name, strconv.FormatInt(seed, 10), variant, fmt.Sprintf("%d-%d", rep, gridIndex))
}

// Config configures a Runner.
type Config struct {
	Partition partition.Config
	Trainer   Trainer
	Tracker   Tracker // Optional
	Logger    *slog.Logger
}

// Runner executes experiments.
type Runner struct {
	partition partition.Config
	trainer   Trainer
	tracker   Tracker
	logger    *slog.Logger
}

// NewRunner creates a runner. A trainer is required.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Trainer == nil {
		return nil, errors.New("trainer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = nopTracker{}
	}
	pcfg := cfg.Partition
	if pcfg.Logger == nil {
		pcfg.Logger = logger
	}
	return &Runner{
		partition: pcfg,
		trainer:   cfg.Trainer,
		tracker:   tracker,
		logger:    logger,
	}, nil
}

// SeedReport summarizes one seed.
type SeedReport struct {
	Seed   int64
	Runs   int
	Failed int
	Errors []error
}

// Err joins the errors of the seed.
func (r *SeedReport) Err() error { return errors.Join(r.Errors...) }

// Report summarizes an experiment.
type Report struct {
	Experiment string
	Seeds      []SeedReport
}

// Runs returns the number of trainer launches.
func (r *Report) Runs() int {
	n := 0
	for _, s := range r.Seeds {
		n += s.Runs
	}
	return n
}

// Failed returns the number of failed trainer launches.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Seeds {
		n += s.Failed
	}
	return n
}

// Err joins the errors of every seed.
func (r *Report) Err() error {
	var errs []error
	for i := range r.Seeds {
		if err := r.Seeds[i].Err(); err != nil {
			errs = append(errs, fmt.Errorf("seed %d: %w", r.Seeds[i].Seed, err))
		}
	}
	return errors.Join(errs...)
}

// Execute runs the experiment. A partition or degradation failure stops
// that seed; a trainer failure stops the current variant. Other seeds and
// variants still run. The returned error joins every failure.
func (r *Runner) Execute(ctx context.Context, setup Setup) (*Report, error) {
	if err := setup.Validate(); err != nil {
		return nil, fmt.Errorf("invalid experiment: %w", err)
	}
	r.warnDuplicateModifiers(setup.Modifiers)

	report := &Report{
		Experiment: setup.Name,
		Seeds:      make([]SeedReport, len(setup.Seeds)),
	}

	r.logger.Info("starting experiment",
		"experiment", setup.Name,
		"seeds", len(setup.Seeds),
		"modifiers", len(setup.Modifiers),
		"concurrency", setup.Concurrency)

	if setup.Concurrency <= 1 {
		for i, seed := range setup.Seeds {
			if err := ctx.Err(); err != nil {
				return report, fmt.Errorf("experiment cancelled: %w", err)
			}
			report.Seeds[i] = r.runSeed(ctx, &setup, seed)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(setup.Concurrency)
		for i, seed := range setup.Seeds {
			g.Go(func() error {
				report.Seeds[i] = r.runSeed(ctx, &setup, seed)
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("experiment cancelled: %w", err)
	}

	r.logger.Info("experiment finished",
		"experiment", setup.Name,
		"runs", report.Runs(),
		"failed", report.Failed())

	return report, report.Err()
}

func (r *Runner) warnDuplicateModifiers(mods []*degrade.Modifier) {
	seen := make(map[string]bool, len(mods))
	for _, m := range mods {
		if seen[m.Name()] {
			r.logger.Warn("duplicate modifier name, degraded datasets will be shared", "modifier", m.Name())
		}
		seen[m.Name()] = true
	}
}

type variant struct {
	name       string
	train, val dataset.Descriptor
}

func (r *Runner) runSeed(ctx context.Context, setup *Setup, seed int64) SeedReport {
	report := SeedReport{Seed: seed}
	log := r.logger.With("seed", seed)

	gen := partition.New(r.partition)
	res, err := gen.Partition(ctx, seed, setup.CorpusDir, setup.DestDir, setup.ValRatio)
	if err != nil {
		log.Error("partition failed", "error", err)
		report.Errors = append(report.Errors, fmt.Errorf("failed to partition: %w", err))
		return report
	}

	grid := Grid(setup.ExtraParams)
	variants := make([]*degrade.Modifier, 0, len(setup.Modifiers)+1)
	variants = append(variants, nil)
	variants = append(variants, setup.Modifiers...)

	for _, m := range variants {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, ctx.Err())
			return report
		}

		v := variant{name: ReferenceVariant, train: res.Train, val: res.Val}
		if m != nil {
			v.name = m.Name()
			if v.train, err = Materialize(ctx, m, res.Train); err != nil {
				log.Error("degradation failed", "modifier", m.Name(), "error", err)
				report.Errors = append(report.Errors, err)
				return report
			}
			if v.val, err = Materialize(ctx, m, res.Val); err != nil {
				log.Error("degradation failed", "modifier", m.Name(), "error", err)
				report.Errors = append(report.Errors, err)
				return report
			}
		}

		if err := r.trainVariant(ctx, setup, seed, v, grid, &report); err != nil {
			log.Warn("variant aborted", "variant", v.name, "error", err)
			report.Errors = append(report.Errors, err)
		}
	}
	return report
}

func (r *Runner) trainVariant(ctx context.Context, setup *Setup, seed int64, v variant, grid []map[string]string, report *SeedReport) error {
	for rep := range setup.repetitions() {
		for gi, params := range grid {
			spec := state.RunSpec{
				Experiment: setup.Name,
				Seed:       seed,
				Variant:    v.name,
				Repetition: rep,
				GridIndex:  gi,
				Params:     params,
				OutputPath: setup.OutputPath(seed, v.name, rep, gi),
			}

			run, err := r.tracker.CreateRun(ctx, spec)
			if err != nil {
				return fmt.Errorf("failed to record run: %w", err)
			}

			report.Runs++
			_, execErr := r.trainer.Execute(ctx, trainer.Request{
				Train:      v.train,
				Val:        v.val,
				OutputPath: spec.OutputPath,
				Params:     params,
			})

			status, msg := state.RunStatusCompleted, ""
			if execErr != nil {
				report.Failed++
				status, msg = state.RunStatusFailed, execErr.Error()
			}
			if err := r.tracker.CompleteRun(context.WithoutCancel(ctx), run.ID, status, msg); err != nil {
				return errors.Join(execErr, fmt.Errorf("failed to record run completion: %w", err))
			}
			if execErr != nil {
				return fmt.Errorf("variant %s repetition %d point %d: %w", v.name, rep, gi, execErr)
			}
		}
	}
	return nil
}

type nopTracker struct{}

func (nopTracker) CreateRun(_ context.Context, spec state.RunSpec) (*state.Run, error) {
	return &state.Run{RunSpec: spec, Status: state.RunStatusRunning}, nil
}

func (nopTracker) CompleteRun(context.Context, string, state.RunStatus, string) error { return nil }
