package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// OutputFormats lists the accepted values of the output option.
var OutputFormats = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.CorpusDir == "" {
		errs = append(errs, errors.New("corpus_dir is required"))
	}
	if c.DestDir == "" {
		errs = append(errs, errors.New("dest_dir is required"))
	}
	if !strings.HasPrefix(c.ImageExt, ".") {
		errs = append(errs, fmt.Errorf("image_ext must start with a dot, got %q", c.ImageExt))
	}
	if c.LabelExt != "" && !strings.HasPrefix(c.LabelExt, ".") {
		errs = append(errs, fmt.Errorf("label_ext must start with a dot, got %q", c.LabelExt))
	}
	if math.IsNaN(c.ValRatio) || c.ValRatio < 0 || c.ValRatio > 1 {
		errs = append(errs, fmt.Errorf("val_ratio must be within [0, 1], got %v", c.ValRatio))
	}
	if !slices.Contains(OutputFormats, c.OutputFormat) {
		errs = append(errs, fmt.Errorf("output must be one of %s, got %q", strings.Join(OutputFormats, ", "), c.OutputFormat))
	}
	if c.Experiment.Repetitions < 0 {
		errs = append(errs, fmt.Errorf("experiment.repetitions must not be negative, got %d", c.Experiment.Repetitions))
	}
	if c.Experiment.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("experiment.concurrency must not be negative, got %d", c.Experiment.Concurrency))
	}

	return errors.Join(errs...)
}

// ValidateExperiment checks the options only "experiment run" needs.
func (c *Config) ValidateExperiment() error {
	var errs []error
	if c.Experiment.Name == "" {
		errs = append(errs, errors.New("experiment.name is required"))
	}
	if len(c.Experiment.Seeds) == 0 {
		errs = append(errs, errors.New("experiment.seeds is required\nHint: set experiment.seeds in dsablate.yaml or DSABLATE_EXPERIMENT__SEEDS=1,2,3"))
	}
	if c.Trainer.Script == "" {
		errs = append(errs, errors.New("trainer.script is required"))
	}
	return errors.Join(errs...)
}
