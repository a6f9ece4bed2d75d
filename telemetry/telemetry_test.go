package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveUnit(t *testing.T) {
	m := New()

	m.ObserveUnit("ffnn", "completed", 2*time.Second)
	m.ObserveUnit("ffnn", "completed", time.Second)
	m.ObserveUnit("ffnn", "skipped", 0)
	m.ObserveUnit("ffnn", "failed", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UnitsTotal.WithLabelValues("ffnn", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnitsTotal.WithLabelValues("ffnn", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnitsTotal.WithLabelValues("ffnn", "failed")))
	// skipped units carry no duration
	assert.Equal(t, 1, testutil.CollectAndCount(m.UnitDuration))
}

func TestScoresAndTextfile(t *testing.T) {
	m := New()
	m.SetScores("linear_reg", "dgp_01", "d", 0.25, 0.9)
	m.SetBestCVScore("random_forest", "dgp_01", "d", -0.3)
	m.MarkRunFinished(time.Unix(1700000000, 0))

	assert.Equal(t, 0.25, testutil.ToFloat64(m.TestMSE.WithLabelValues("linear_reg", "dgp_01", "d")))
	assert.Equal(t, 0.9, testutil.ToFloat64(m.TestR2.WithLabelValues("linear_reg", "dgp_01", "d")))

	path := filepath.Join(t.TempDir(), "dgpbench.prom")
	require.NoError(t, m.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, `dgpbench_test_mse{dataset="d",dgp="dgp_01",model="linear_reg"} 0.25`)
	assert.Contains(t, out, `dgpbench_best_cv_score{dataset="d",dgp="dgp_01",model="random_forest"} -0.3`)
	assert.Contains(t, out, "dgpbench_last_run_timestamp_seconds 1.7e+09")

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
