// Package telemetry collects Prometheus metrics for training runs.
//
// The trainer is a batch job with no HTTP surface, so metrics are kept in a
// private registry and written once per run in the node_exporter textfile
// format.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

const namespace = "dgpbench"

// Metrics holds the run metrics.
type Metrics struct {
	registry *prometheus.Registry

	UnitsTotal   *prometheus.CounterVec   // units by model and status
	UnitDuration *prometheus.HistogramVec // seconds per processed unit
	TestMSE      *prometheus.GaugeVec     // test-set MSE per unit
	TestR2       *prometheus.GaugeVec     // test-set R² per unit
	BestCVScore  *prometheus.GaugeVec     // best mean CV score per searched unit
	LastRunTime  prometheus.Gauge         // unix time the last run finished
}

// New creates metrics on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates metrics registered on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	unitLabels := []string{"model", "dgp", "dataset"}
	return &Metrics{
		registry: reg,
		UnitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Training units processed, by outcome",
		}, []string{"model", "status"}),
		UnitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Wall time of a processed training unit",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"model"}),
		TestMSE: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "test_mse",
			Help:      "Mean squared error on the test set",
		}, unitLabels),
		TestR2: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "test_r2",
			Help:      "Coefficient of determination on the test set",
		}, unitLabels),
		BestCVScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_cv_score",
			Help:      "Mean cross-validated score of the selected candidate",
		}, unitLabels),
		LastRunTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last run finished",
		}),
	}
}

// ObserveUnit counts a unit outcome. Duration is recorded for units that
// were actually processed.
func (m *Metrics) ObserveUnit(model, status string, d time.Duration) {
	m.UnitsTotal.WithLabelValues(model, status).Inc()
	if status != "skipped" {
		m.UnitDuration.WithLabelValues(model).Observe(d.Seconds())
	}
}

// SetScores records the test metrics of a completed unit.
func (m *Metrics) SetScores(model, dgp, dataset string, mse, r2 float64) {
	m.TestMSE.WithLabelValues(model, dgp, dataset).Set(mse)
	m.TestR2.WithLabelValues(model, dgp, dataset).Set(r2)
}

// SetBestCVScore records the search score of a unit.
func (m *Metrics) SetBestCVScore(model, dgp, dataset string, score float64) {
	m.BestCVScore.WithLabelValues(model, dgp, dataset).Set(score)
}

// MarkRunFinished stamps LastRunTime.
func (m *Metrics) MarkRunFinished(t time.Time) {
	m.LastRunTime.Set(float64(t.Unix()))
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes all metrics to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "writing metrics to %s", path)
	}
	return nil
}
