// Package config loads dsablate configuration from defaults, a project
// file, DSABLATE_ environment variables and command-line flags.
package config

// Config holds all CLI configuration options.
type Config struct {
	ProjectRoot  string           `koanf:"-" yaml:"-" json:"-"`
	CorpusDir    string           `koanf:"corpus_dir" yaml:"corpus_dir,omitempty" json:"corpus_dir,omitempty"`
	DestDir      string           `koanf:"dest_dir" yaml:"dest_dir,omitempty" json:"dest_dir,omitempty"`
	StatePath    string           `koanf:"state_path" yaml:"state_path,omitempty" json:"state_path,omitempty"`
	ImageExt     string           `koanf:"image_ext" yaml:"image_ext,omitempty" json:"image_ext,omitempty"`
	LabelExt     string           `koanf:"label_ext" yaml:"label_ext,omitempty" json:"label_ext,omitempty"`
	ValRatio     float64          `koanf:"val_ratio" yaml:"val_ratio" json:"val_ratio"`
	Verbose      bool             `koanf:"verbose" yaml:"verbose,omitempty" json:"verbose,omitempty"`
	OutputFormat string           `koanf:"output" yaml:"output,omitempty" json:"output,omitempty"`
	Experiment   ExperimentConfig `koanf:"experiment" yaml:"experiment,omitempty" json:"experiment,omitempty"`
	Trainer      TrainerConfig    `koanf:"trainer" yaml:"trainer,omitempty" json:"trainer,omitempty"`
}

// ExperimentConfig describes the ablation grid run by "experiment run".
type ExperimentConfig struct {
	Name        string              `koanf:"name" yaml:"name,omitempty" json:"name,omitempty"`
	OutputDir   string              `koanf:"output_dir" yaml:"output_dir,omitempty" json:"output_dir,omitempty"`
	Seeds       []int64             `koanf:"seeds" yaml:"seeds,omitempty" json:"seeds,omitempty"`
	Qualities   []int               `koanf:"qualities" yaml:"qualities,omitempty" json:"qualities,omitempty"`
	Repetitions int                 `koanf:"repetitions" yaml:"repetitions,omitempty" json:"repetitions,omitempty"`
	ExtraParams map[string][]string `koanf:"extra_params" yaml:"extra_params,omitempty" json:"extra_params,omitempty"`
	Concurrency int                 `koanf:"concurrency" yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
}

// TrainerConfig describes how the training script is launched.
type TrainerConfig struct {
	Interpreter string            `koanf:"interpreter" yaml:"interpreter,omitempty" json:"interpreter,omitempty"`
	Script      string            `koanf:"script" yaml:"script,omitempty" json:"script,omitempty"`
	Devices     string            `koanf:"devices" yaml:"devices,omitempty" json:"devices,omitempty"`
	WorkDir     string            `koanf:"workdir" yaml:"workdir,omitempty" json:"workdir,omitempty"`
	Env         map[string]string `koanf:"env" yaml:"env,omitempty" json:"env,omitempty"`
}

// Default configuration values.
const (
	DefaultCorpusDir   = "datasets/alldata"
	DefaultDestDir     = "datasets"
	DefaultStateFile   = ".dsablate/state.db"
	DefaultImageExt    = ".tif"
	DefaultValRatio    = 0.2
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultExperiment  = "ablation"
	DefaultRunsDir     = "runs"
	DefaultInterpreter = "python"
)

// DefaultQualities are the JPEG qualities swept when none are configured.
var DefaultQualities = []int{10, 30, 50, 70, 90}

// ConfigFileNames are searched, in order, in the project root.
var ConfigFileNames = []string{"dsablate.yaml", "dsablate.yml"}
