package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/dsablate/internal/cli/config"
	"github.com/leapstack-labs/dsablate/internal/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCommand(t *testing.T) {
	tests := []struct {
		name     string
		existing string // dsablate.yaml content present before init
		args     []string
		wantErr  string
		want     []string
	}{
		{
			name: "empty directory",
			want: []string{
				"dsablate.yaml",
				".gitignore",
				"datasets/alldata/images/.gitkeep",
				"datasets/alldata/labels/.gitkeep",
			},
		},
		{
			name:     "refuses existing config",
			existing: "corpus_dir: mine",
			wantErr:  "already exists",
		},
		{
			name:     "force replaces existing config",
			existing: "corpus_dir: mine",
			args:     []string{"--force"},
			want:     []string{"dsablate.yaml", "datasets/alldata/images/.gitkeep"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			testutil.Chdir(t, dir)
			if tt.existing != "" {
				require.NoError(t, os.WriteFile("dsablate.yaml", []byte(tt.existing), 0o600))
			}

			out, err := execute(t, NewInitCommand(), tt.args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, "project initialized")

			for _, f := range tt.want {
				assert.FileExists(t, filepath.Join(dir, f))
			}
		})
	}
}

func TestInitCommand_TargetDirectory(t *testing.T) {
	target := filepath.Join(t.TempDir(), "ablation")

	_, err := execute(t, NewInitCommand(), target)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(target, "datasets", "alldata", "labels"))
	assert.NoFileExists(t, filepath.Join(target, "gitignore"), "template dotfiles must be renamed")
}

func TestInitCommand_ConfigLoads(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, NewInitCommand(), dir)
	require.NoError(t, err)

	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cfg, err := config.LoadConfig(filepath.Join(dir, "dsablate.yaml"), nil)
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateExperiment())

	assert.Equal(t, filepath.Join(dir, "datasets", "alldata"), cfg.CorpusDir)
	assert.Equal(t, []int{10, 30, 50, 70, 90}, cfg.Experiment.Qualities)
	assert.Equal(t, []int64{47625}, cfg.Experiment.Seeds)
	assert.InDelta(t, 0.2, cfg.ValRatio, 1e-9)
	assert.Equal(t, "python", cfg.Trainer.Interpreter)
}
