package experiment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/leapstack-labs/dsablate/internal/dataset"
	"github.com/leapstack-labs/dsablate/internal/degrade"
	"github.com/leapstack-labs/dsablate/internal/partition"
	"github.com/leapstack-labs/dsablate/internal/state"
	"github.com/leapstack-labs/dsablate/internal/testutil"
	"github.com/leapstack-labs/dsablate/internal/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTrainer records requests and fails for matching output paths.
type fakeTrainer struct {
	mu       sync.Mutex
	requests []trainer.Request
	failOn   string
}

func (f *fakeTrainer) Execute(_ context.Context, req trainer.Request) (*trainer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.failOn != "" && strings.Contains(req.OutputPath, f.failOn) {
		return nil, &trainer.ExitError{Code: 1, Stderr: "boom"}
	}
	return &trainer.Result{}, nil
}

func (f *fakeTrainer) outputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.OutputPath
	}
	return out
}

func newSetup(t *testing.T, corpus string, mods ...*degrade.Modifier) Setup {
	t.Helper()
	root := t.TempDir()
	return Setup{
		Name:      "ablation",
		CorpusDir: corpus,
		DestDir:   filepath.Join(root, "datasets"),
		OutputDir: filepath.Join(root, "runs"),
		ValRatio:  0.2,
		Seeds:     []int64{47625},
		Modifiers: mods,
	}
}

func openStore(t *testing.T) *state.SQLiteStore {
	t.Helper()
	store := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(state.MemoryPath))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewRunner_RequiresTrainer(t *testing.T) {
	_, err := NewRunner(Config{})
	assert.Error(t, err)
}

func TestSetup_Validate(t *testing.T) {
	s := Setup{ValRatio: 2}
	err := s.Validate()
	require.Error(t, err)
	for _, msg := range []string{"name", "corpus", "destination", "output", "seed", "ratio"} {
		assert.Contains(t, err.Error(), msg)
	}
}

func TestSetup_OutputPath(t *testing.T) {
	s := Setup{Name: "exp", OutputDir: "/runs"}
	assert.Equal(t, filepath.Join("/runs", "exp", "7", "jpg10_modifier", "1-2"), s.OutputPath(7, "jpg10_modifier", 1, 2))
}

func TestRunner_Execute(t *testing.T) {
	corpus := testutil.SetupCorpus(t, 10)
	fake := &fakeTrainer{}
	store := openStore(t)

	runner, err := NewRunner(Config{Trainer: fake, Tracker: store, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	setup := newSetup(t, corpus, degrade.NewJPEG(10, nil), degrade.NewJPEG(90, nil))
	setup.Repetitions = 2
	setup.ExtraParams = map[string][]string{"weights": {"yolov5n.pt", "yolov5s.pt"}}

	report, err := runner.Execute(context.Background(), setup)
	require.NoError(t, err)

	// 3 variants x 2 repetitions x 2 grid points.
	assert.Equal(t, 12, report.Runs())
	assert.Equal(t, 0, report.Failed())
	require.Len(t, fake.requests, 12)

	first := fake.requests[0]
	assert.Equal(t, filepath.Join(setup.DestDir, "train47625"), first.Train.DataPath)
	assert.Equal(t, filepath.Join(setup.DestDir, "val47625"), first.Val.DataPath)
	assert.Equal(t, setup.OutputPath(47625, ReferenceVariant, 0, 0), first.OutputPath)
	assert.Equal(t, map[string]string{"weights": "yolov5n.pt"}, first.Params)

	degraded := fake.requests[4]
	assert.Equal(t, filepath.Join(setup.DestDir, "train47625#jpg10_modifier"), degraded.Train.DataPath)
	assert.Equal(t, filepath.Join(setup.DestDir, "val47625#jpg10_modifier"), degraded.Val.DataPath)

	// Degraded partitions mirror the originals.
	for _, p := range []string{"train47625", "val47625"} {
		orig := dataset.NewDescriptor(filepath.Join(setup.DestDir, p))
		mod := dataset.NewDescriptor(filepath.Join(setup.DestDir, p+"#jpg90_modifier"))
		assert.Equal(t, testutil.ListNames(t, orig.ImagesPath()), testutil.ListNames(t, mod.ImagesPath()))
		assert.Equal(t, testutil.ListNames(t, orig.MaskAnnotationsDir), testutil.ListNames(t, mod.MaskAnnotationsDir))
		assert.FileExists(t, filepath.Join(mod.DataPath, dataset.AnnotationsFile))
	}

	runs, err := store.ListRuns(context.Background(), state.RunFilter{Experiment: "ablation"})
	require.NoError(t, err)
	require.Len(t, runs, 12)
	for _, run := range runs {
		assert.Equal(t, state.RunStatusCompleted, run.Status)
		assert.NotNil(t, run.CompletedAt)
	}
}

func TestRunner_Execute_TrainerFailureAbortsVariant(t *testing.T) {
	corpus := testutil.SetupCorpus(t, 5)
	fake := &fakeTrainer{failOn: "jpg10_modifier"}
	store := openStore(t)

	runner, err := NewRunner(Config{Trainer: fake, Tracker: store})
	require.NoError(t, err)

	setup := newSetup(t, corpus, degrade.NewJPEG(10, nil), degrade.NewJPEG(90, nil))
	setup.Repetitions = 3

	report, err := runner.Execute(context.Background(), setup)
	require.Error(t, err)

	var exitErr *trainer.ExitError
	assert.ErrorAs(t, err, &exitErr)

	// reference: 3, jpg10: 1 then abort, jpg90: 3.
	assert.Equal(t, 7, report.Runs())
	assert.Equal(t, 1, report.Failed())

	var jpg90 int
	for _, out := range fake.outputs() {
		if strings.Contains(out, "jpg90_modifier") {
			jpg90++
		}
	}
	assert.Equal(t, 3, jpg90)

	runs, err := store.ListRuns(context.Background(), state.RunFilter{})
	require.NoError(t, err)
	var failed []*state.Run
	for _, run := range runs {
		if run.Status == state.RunStatusFailed {
			failed = append(failed, run)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, "jpg10_modifier", failed[0].Variant)
	assert.Contains(t, failed[0].Error, "code 1")
}

func TestRunner_Execute_PartitionFailureAbortsSeed(t *testing.T) {
	corpus := testutil.SetupCorpus(t, 3)
	testutil.WriteFile(t, filepath.Join(corpus, dataset.LabelsDir, "orphan.json"), "{}")
	fake := &fakeTrainer{}

	runner, err := NewRunner(Config{Trainer: fake})
	require.NoError(t, err)

	setup := newSetup(t, corpus)
	setup.Seeds = []int64{1, 2}

	report, err := runner.Execute(context.Background(), setup)
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrMissingPair)
	assert.Empty(t, fake.requests)
	require.Len(t, report.Seeds, 2)
	assert.Error(t, report.Seeds[0].Err())
	assert.Error(t, report.Seeds[1].Err())
}

func TestRunner_Execute_DegradationFailureAbortsSeed(t *testing.T) {
	corpus := testutil.SetupCorpus(t, 4)
	// A corrupt image passes pairing but fails to decode.
	testutil.WriteFile(t, filepath.Join(corpus, dataset.ImagesDir, "sample_000.tif"), "garbage")
	fake := &fakeTrainer{}

	runner, err := NewRunner(Config{Trainer: fake})
	require.NoError(t, err)

	setup := newSetup(t, corpus, degrade.NewJPEG(50, nil), degrade.NewJPEG(70, nil))
	setup.ValRatio = 0.5

	report, err := runner.Execute(context.Background(), setup)
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrInvalidImage)

	// Only the reference variant trained before the first modifier failed.
	assert.Equal(t, 1, report.Runs())
	for _, out := range fake.outputs() {
		assert.Contains(t, out, ReferenceVariant)
	}
}

func TestRunner_Execute_ParallelSeeds(t *testing.T) {
	corpus := testutil.SetupCorpus(t, 6)
	fake := &fakeTrainer{}

	runner, err := NewRunner(Config{Trainer: fake, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	setup := newSetup(t, corpus, degrade.NewJPEG(30, nil))
	setup.Seeds = []int64{1, 2, 3, 4}
	setup.Concurrency = 2

	report, err := runner.Execute(context.Background(), setup)
	require.NoError(t, err)
	assert.Equal(t, 8, report.Runs())

	for i, seed := range setup.Seeds {
		assert.Equal(t, seed, report.Seeds[i].Seed)
	}

	// Parallel partitions match a sequential run of the same seed.
	seq := newSetup(t, corpus)
	seq.Seeds = []int64{3}
	_, err = runner.Execute(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t,
		testutil.ListNames(t, filepath.Join(seq.DestDir, "val3", dataset.ImagesDir)),
		testutil.ListNames(t, filepath.Join(setup.DestDir, "val3", dataset.ImagesDir)))
}

func TestRunner_Execute_Cancelled(t *testing.T) {
	corpus := testutil.SetupCorpus(t, 2)
	runner, err := NewRunner(Config{Trainer: &fakeTrainer{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = runner.Execute(ctx, newSetup(t, corpus))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_Execute_TrackerFailure(t *testing.T) {
	corpus := testutil.SetupCorpus(t, 2)
	fake := &fakeTrainer{}
	runner, err := NewRunner(Config{Trainer: fake, Tracker: failingTracker{}})
	require.NoError(t, err)

	_, err = runner.Execute(context.Background(), newSetup(t, corpus))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record run")
	assert.Empty(t, fake.requests)
}

type failingTracker struct{}

func (failingTracker) CreateRun(context.Context, state.RunSpec) (*state.Run, error) {
	return nil, errors.New("database is locked")
}

func (failingTracker) CompleteRun(context.Context, string, state.RunStatus, string) error {
	return nil
}

func TestMaterialize(t *testing.T) {
	corpus := testutil.SetupCorpus(t, 3)
	desc := dataset.NewDescriptor(corpus)
	testutil.WriteFile(t, filepath.Join(corpus, dataset.AnnotationsFile), "")

	got, err := Materialize(context.Background(), degrade.NewJPEG(20, nil), desc)
	require.NoError(t, err)

	assert.Equal(t, corpus+"#jpg20_modifier", got.DataPath)
	assert.Equal(t, testutil.ListNames(t, desc.ImagesPath()), testutil.ListNames(t, got.ImagesPath()))
	assert.Equal(t, testutil.ListNames(t, desc.MaskAnnotationsDir), testutil.ListNames(t, got.MaskAnnotationsDir))

	info, err := os.Stat(filepath.Join(got.DataPath, dataset.AnnotationsFile))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestMaterialize_ShrunkCorpusKeepsPairs(t *testing.T) {
	corpus := testutil.SetupCorpus(t, 6)
	dest := t.TempDir()
	gen := partition.New(partition.Config{Logger: testutil.NewTestLogger(t)})
	m := degrade.NewJPEG(30, nil)

	res, err := gen.Partition(context.Background(), 7, corpus, dest, 0)
	require.NoError(t, err)
	_, err = Materialize(context.Background(), m, res.Train)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(corpus, "images", "sample_003.tif")))
	require.NoError(t, os.Remove(filepath.Join(corpus, "labels", "sample_003.json")))

	res, err = gen.Partition(context.Background(), 7, corpus, dest, 0)
	require.NoError(t, err)
	got, err := Materialize(context.Background(), m, res.Train)
	require.NoError(t, err)

	images := testutil.ListNames(t, got.ImagesPath())
	labels := testutil.ListNames(t, got.MaskAnnotationsDir)
	require.Len(t, images, 5)
	require.Len(t, labels, 5)
	for i := range images {
		assert.Equal(t, strings.TrimSuffix(labels[i], ".json")+".tif", images[i])
	}
}
