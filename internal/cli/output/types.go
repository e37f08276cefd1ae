package output

import (
	"time"

	"github.com/leapstack-labs/dsablate/internal/dataset"
)

// PartitionOutput is the JSON result of the partition command.
type PartitionOutput struct {
	Seed     int64              `json:"seed"`
	ValRatio float64            `json:"val_ratio"`
	Train    dataset.Descriptor `json:"train"`
	Val      dataset.Descriptor `json:"val"`
	Counts   PartitionCounts    `json:"counts"`
}

// PartitionCounts holds member counts per partition.
type PartitionCounts struct {
	Train int `json:"train"`
	Val   int `json:"val"`
}

// DegradeOutput is the JSON result of the degrade command.
type DegradeOutput struct {
	Modifiers []DegradeResult `json:"modifiers"`
}

// DegradeResult describes one materialized degraded directory.
type DegradeResult struct {
	Modifier string   `json:"modifier"`
	Quality  int      `json:"quality"`
	Stages   []string `json:"stages"`
	Source   string   `json:"source"`
	Output   string   `json:"output"`
}

// ExperimentOutput is the JSON result of "experiment run".
type ExperimentOutput struct {
	Experiment string        `json:"experiment"`
	Runs       int           `json:"runs"`
	Failed     int           `json:"failed"`
	Seeds      []SeedSummary `json:"seeds"`
}

// SeedSummary is the outcome of one seed.
type SeedSummary struct {
	Seed   int64    `json:"seed"`
	Runs   int      `json:"runs"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// RunInfo is one recorded trainer launch.
type RunInfo struct {
	ID          string            `json:"id"`
	Experiment  string            `json:"experiment"`
	Seed        int64             `json:"seed"`
	Variant     string            `json:"variant"`
	Repetition  int               `json:"repetition"`
	GridIndex   int               `json:"grid_index"`
	Params      map[string]string `json:"params,omitempty"`
	OutputPath  string            `json:"output_path"`
	Status      string            `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// RunsOutput is the JSON result of "runs list".
type RunsOutput struct {
	Runs  []RunInfo `json:"runs"`
	Total int       `json:"total"`
}
