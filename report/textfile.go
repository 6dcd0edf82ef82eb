// Package report exports evaluation summaries in the Prometheus text
// exposition format, for node_exporter's textfile collector or for diffing
// runs.
package report

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/YuminosukeSato/cvscore/evaluation"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
)

const namespace = "cvscore"

// Metrics holds the gauges of one evaluation run.
type Metrics struct {
	registry *prometheus.Registry

	Averages *prometheus.GaugeVec // by classifier and metric
	FoldAUC  *prometheus.GaugeVec // by classifier and fold
	Folds    *prometheus.GaugeVec // by classifier
}

// NewMetrics registers the gauges on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Averages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "score",
			Help:      "Metric averaged over the configured number of folds",
		}, []string{"classifier", "metric"}),
		FoldAUC: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fold_auc",
			Help:      "ROC AUC of a single fold",
		}, []string{"classifier", "fold"}),
		Folds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "folds",
			Help:      "Number of cross-validation folds",
		}, []string{"classifier"}),
	}
	reg.MustRegister(m.Averages, m.FoldAUC, m.Folds)
	return m
}

// Observe records s under the classifier label. Accuracy and AUC are only
// recorded when the summary carries them.
func (m *Metrics) Observe(classifier string, s evaluation.Summary) {
	m.Folds.WithLabelValues(classifier).Set(float64(s.Folds))
	if s.Binary {
		m.Averages.WithLabelValues(classifier, "accuracy").Set(s.Accuracy)
	}
	m.Averages.WithLabelValues(classifier, "precision").Set(s.Precision)
	m.Averages.WithLabelValues(classifier, "recall").Set(s.Recall)
	m.Averages.WithLabelValues(classifier, "f1").Set(s.F1)
	if s.ROCAvailable {
		m.Averages.WithLabelValues(classifier, "auc").Set(s.AUC)
		for _, c := range s.Curves {
			m.FoldAUC.WithLabelValues(classifier, strconv.Itoa(c.Fold)).Set(c.AUC)
		}
	}
}

// Gatherer exposes the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteFile writes the gauges to path atomically.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "write metrics %s", path)
	}
	return nil
}
