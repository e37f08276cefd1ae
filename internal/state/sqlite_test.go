package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/dsablate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(MemoryPath))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleSpec(experiment string, seed int64, variant string) RunSpec {
	return RunSpec{
		Experiment: experiment,
		Seed:       seed,
		Variant:    variant,
		Repetition: 0,
		GridIndex:  1,
		Params:     map[string]string{"weights": "yolov5s.pt"},
		OutputPath: filepath.Join("/out", experiment, variant),
	}
}

func TestSQLiteStore_OpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	defer store.Close()

	assert.FileExists(t, path)
	assert.Equal(t, path, store.Path())

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// Reopening an up to date database is a no-op.
	require.NoError(t, store.Close())
	require.NoError(t, store.Open(path))
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, sampleSpec("exp", 47625, "jpg10_modifier"))
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.RunSpec, got.RunSpec)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, got.Error)

	require.NoError(t, store.CompleteRun(ctx, run.ID, RunStatusFailed, "trainer exited with code 1"))

	got, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "trainer exited with code 1", got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.CompletedAt.Before(got.StartedAt))
}

func TestSQLiteStore_NilParams(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	spec := sampleSpec("exp", 1, "reference")
	spec.Params = nil
	run, err := store.CreateRun(ctx, spec)
	require.NoError(t, err)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Params)
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSQLiteStore_CompleteRunNotFound(t *testing.T) {
	store := openTestStore(t)

	err := store.CompleteRun(context.Background(), "missing", RunStatusCompleted, "")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for i, variant := range []string{"reference", "jpg10_modifier", "jpg90_modifier"} {
		run, err := store.CreateRun(ctx, sampleSpec("a", int64(i), variant))
		require.NoError(t, err)
		ids = append(ids, run.ID)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := store.CreateRun(ctx, sampleSpec("b", 9, "reference"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter RunFilter
		want   int
	}{
		{name: "all", filter: RunFilter{}, want: 4},
		{name: "by experiment", filter: RunFilter{Experiment: "a"}, want: 3},
		{name: "limited", filter: RunFilter{Experiment: "a", Limit: 2}, want: 2},
		{name: "unknown experiment", filter: RunFilter{Experiment: "zzz"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ListRuns(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, runs, tt.want)
		})
	}

	runs, err := store.ListRuns(ctx, RunFilter{Experiment: "a"})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID, "newest first")
	assert.Equal(t, ids[0], runs[2].ID)
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	ctx := context.Background()

	_, err := store.CreateRun(ctx, RunSpec{})
	assert.Error(t, err)
	_, err = store.GetRun(ctx, "x")
	assert.Error(t, err)
	_, err = store.ListRuns(ctx, RunFilter{})
	assert.Error(t, err)
	assert.Error(t, store.CompleteRun(ctx, "x", RunStatusCompleted, ""))
	assert.Error(t, store.Migrate())
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_DatabaseErrors(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		call      func(s *SQLiteStore) error
		errMsg    string
	}{
		{
			name: "create run insert fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO runs").WillReturnError(assert.AnError)
			},
			call: func(s *SQLiteStore) error {
				_, err := s.CreateRun(context.Background(), sampleSpec("e", 1, "reference"))
				return err
			},
			errMsg: "failed to create run",
		},
		{
			name: "complete run update fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE runs SET status").WillReturnError(assert.AnError)
			},
			call: func(s *SQLiteStore) error {
				return s.CompleteRun(context.Background(), "id", RunStatusCompleted, "")
			},
			errMsg: "failed to complete run",
		},
		{
			name: "list runs query fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM runs").WillReturnError(assert.AnError)
			},
			call: func(s *SQLiteStore) error {
				_, err := s.ListRuns(context.Background(), RunFilter{Limit: 5})
				return err
			},
			errMsg: "failed to list runs",
		},
		{
			name: "list runs row error",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{
					"id", "experiment", "seed", "variant", "repetition", "grid_index",
					"params", "output_path", "status", "started_at", "completed_at", "error",
				}).
					AddRow("1", "e", 1, "reference", 0, 0, "{}", "/o", "running", time.Now(), nil, nil).
					RowError(0, assert.AnError)
				mock.ExpectQuery("SELECT (.+) FROM runs").WillReturnRows(rows)
			},
			call: func(s *SQLiteStore) error {
				_, err := s.ListRuns(context.Background(), RunFilter{})
				return err
			},
			errMsg: "failed to list runs",
		},
		{
			name: "get run with corrupt params",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{
					"id", "experiment", "seed", "variant", "repetition", "grid_index",
					"params", "output_path", "status", "started_at", "completed_at", "error",
				}).AddRow("1", "e", 1, "reference", 0, 0, "{not json", "/o", "running", time.Now(), nil, nil)
				mock.ExpectQuery("SELECT (.+) FROM runs WHERE id").WithArgs("1").WillReturnRows(rows)
			},
			call: func(s *SQLiteStore) error {
				_, err := s.GetRun(context.Background(), "1")
				return err
			},
			errMsg: "failed to decode params",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.setupMock(mock)
			store := NewSQLiteStoreWithDB(db, testutil.NewTestLogger(t))

			err = tt.call(store)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
