package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestUnitRoundTrip(t *testing.T) {
	l, _ := openTemp(t)
	score := -0.25
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	records := []UnitRecord{
		{RunID: "run-a", ModelTag: "ffnn", DGP: "dgp_02", Dataset: "d", Status: StatusFailed, Error: "boom", Time: now},
		{RunID: "run-a", ModelTag: "ffnn", DGP: "dgp_01", Dataset: "d", Status: StatusCompleted,
			BestParams: map[string]interface{}{"n_hidden": 3, "activation": "relu"},
			BestScore:  &score, TestMSE: 0.5, TestR2: 0.9, Duration: 1500 * time.Millisecond, Time: now},
		{RunID: "run-b", ModelTag: "ffnn", DGP: "dgp_01", Dataset: "d", Status: StatusSkipped, Time: now},
	}
	for _, r := range records {
		require.NoError(t, l.RecordUnit(r))
	}

	units, err := l.Units("run-a")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "dgp_01", units[0].DGP, "ordered by key")
	assert.Equal(t, StatusCompleted, units[0].Status)
	require.NotNil(t, units[0].BestScore)
	assert.Equal(t, score, *units[0].BestScore)
	assert.Equal(t, 1500*time.Millisecond, units[0].Duration)
	// JSON numbers come back as float64
	assert.Equal(t, 3.0, units[0].BestParams["n_hidden"])
	assert.True(t, now.Equal(units[0].Time))
	assert.Nil(t, units[1].BestScore)
	assert.Equal(t, "boom", units[1].Error)

	// same unit in the same run is replaced
	records[0].Status = StatusCompleted
	require.NoError(t, l.RecordUnit(records[0]))
	units, err = l.Units("run-a")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, StatusCompleted, units[1].Status)

	units, err = l.Units("run-c")
	require.NoError(t, err)
	assert.Empty(t, units)

	assert.Error(t, l.RecordUnit(UnitRecord{ModelTag: "ffnn"}))
}

func TestRunRecords(t *testing.T) {
	l, path := openTemp(t)

	_, ok, err := l.Run("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	run := RunRecord{ID: "run-a", ModelTag: "linear_reg", StartedAt: time.Now().UTC()}
	require.NoError(t, l.PutRun(run))
	run.Completed, run.Failed = 4, 1
	run.FinishedAt = run.StartedAt.Add(time.Minute)
	require.NoError(t, l.PutRun(run))

	got, ok, err := l.Run("run-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, got.Completed)
	assert.Equal(t, 1, got.Failed)

	// data survives reopening
	require.NoError(t, l.Close())
	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()
	got, ok, err = l2.Run("run-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "linear_reg", got.ModelTag)
}
