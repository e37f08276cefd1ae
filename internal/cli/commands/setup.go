package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/leapstack-labs/dsablate/internal/cli/config"
	"github.com/leapstack-labs/dsablate/internal/cli/output"
	"github.com/leapstack-labs/dsablate/internal/partition"
	"github.com/leapstack-labs/dsablate/internal/state"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Store    *state.SQLiteStore
}

// NewCommandContext creates a CommandContext without a state store.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// NewCommandContextWithStore creates a CommandContext with an open state store.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContextWithStore(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContext(cmd)

	store := state.NewSQLiteStore(cmdCtx.Logger)
	if err := store.Open(cmdCtx.Cfg.StatePath); err != nil {
		return nil, nil, fmt.Errorf("failed to open state database: %w", err)
	}
	cmdCtx.Store = store

	cleanup := func() {
		_ = store.Close()
	}
	return cmdCtx, cleanup, nil
}

// PartitionConfig returns the generator configuration for the loaded config.
func (c *CommandContext) PartitionConfig() partition.Config {
	return partition.Config{
		ImageExt: c.Cfg.ImageExt,
		LabelExt: c.Cfg.LabelExt,
		Logger:   c.Logger,
	}
}

// Helper functions shared across commands

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	valRatio := config.DefaultValRatio
	if v, err := strconv.ParseFloat(os.Getenv("DSABLATE_VAL_RATIO"), 64); err == nil {
		valRatio = v
	}

	return &config.Config{
		CorpusDir:    getEnvOrDefault("DSABLATE_CORPUS_DIR", config.DefaultCorpusDir),
		DestDir:      getEnvOrDefault("DSABLATE_DEST_DIR", config.DefaultDestDir),
		StatePath:    getEnvOrDefault("DSABLATE_STATE_PATH", config.DefaultStateFile),
		ImageExt:     getEnvOrDefault("DSABLATE_IMAGE_EXT", config.DefaultImageExt),
		LabelExt:     os.Getenv("DSABLATE_LABEL_EXT"),
		ValRatio:     valRatio,
		Verbose:      os.Getenv("DSABLATE_VERBOSE") == "true",
		OutputFormat: os.Getenv("DSABLATE_OUTPUT"),
		Experiment: config.ExperimentConfig{
			Name:        config.DefaultExperiment,
			OutputDir:   config.DefaultRunsDir,
			Qualities:   config.DefaultQualities,
			Repetitions: 1,
			Concurrency: 1,
		},
		Trainer: config.TrainerConfig{
			Interpreter: config.DefaultInterpreter,
		},
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
