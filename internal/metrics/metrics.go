// Package metrics provides Prometheus instrumentation of the suggestion cycle.
//
// Metrics exposed:
//   - bore_suggestions_total: Counter of suggestions by source and fallback reason
//   - bore_fit_seconds: Histogram of classifier training duration
//   - bore_fit_loss: Gauge of the training loss after the last fit
//   - bore_fit_accuracy: Gauge of the training accuracy after the last fit
//   - bore_maximize_seconds: Histogram of acquisition maximization duration
//   - bore_local_searches_total: Counter of local searches by outcome
//   - bore_observations_total: Counter of recorded evaluations by outcome
//   - bore_record_size: Gauge of the number of observations used by the last fit
//   - bore_best_loss: Gauge of the lowest finite loss observed
//   - bore_errors_total: Counter of errors by component
package metrics

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haskel/bore/internal/classifier"
	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/optimize"
)

// Metrics holds all Prometheus metrics of one optimizer.
type Metrics struct {
	registry *prometheus.Registry

	SuggestionsTotal   *prometheus.CounterVec
	FitSeconds         prometheus.Histogram
	FitLoss            prometheus.Gauge
	FitAccuracy        prometheus.Gauge
	MaximizeSeconds    prometheus.Histogram
	LocalSearchesTotal *prometheus.CounterVec
	ObservationsTotal  *prometheus.CounterVec
	RecordSize         prometheus.Gauge
	BestLoss           *prometheus.GaugeVec
	ErrorsTotal        *prometheus.CounterVec

	mu   sync.Mutex
	best map[float64]float64
}

// New creates the metrics on a private registry. The generator kind is
// attached as a constant label.
func New(kind string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"generator": kind}

	return &Metrics{
		registry: reg,

		SuggestionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "bore_suggestions_total",
			Help:        "Total number of suggestions by source and fallback reason",
			ConstLabels: labels,
		}, []string{"source", "reason"}),

		FitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "bore_fit_seconds",
			Help:        "Time spent training the classifier",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		FitLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "bore_fit_loss",
			Help:        "Training loss after the last fit",
			ConstLabels: labels,
		}),

		FitAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "bore_fit_accuracy",
			Help:        "Training accuracy after the last fit",
			ConstLabels: labels,
		}),

		MaximizeSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "bore_maximize_seconds",
			Help:        "Time spent maximizing the acquisition function",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		LocalSearchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "bore_local_searches_total",
			Help:        "Total number of local searches by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),

		ObservationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "bore_observations_total",
			Help:        "Total number of recorded evaluations by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),

		RecordSize: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "bore_record_size",
			Help:        "Number of training rows used by the last fit",
			ConstLabels: labels,
		}),

		BestLoss: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "bore_best_loss",
			Help:        "Lowest finite loss observed per budget",
			ConstLabels: labels,
		}, []string{"budget"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "bore_errors_total",
			Help:        "Total number of errors by component",
			ConstLabels: labels,
		}, []string{"component"}),

		best: make(map[float64]float64),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Suggested implements generator.Observer.
func (m *Metrics) Suggested(source, reason string) {
	m.SuggestionsTotal.WithLabelValues(source, reason).Inc()
}

// Fitted implements generator.Observer.
func (m *Metrics) Fitted(d time.Duration, metrics classifier.Metrics, size int) {
	m.FitSeconds.Observe(d.Seconds())
	m.FitLoss.Set(metrics.Loss)
	m.FitAccuracy.Set(metrics.Accuracy)
	m.RecordSize.Set(float64(size))
}

// Maximized implements generator.Observer.
func (m *Metrics) Maximized(d time.Duration, s optimize.Summary) {
	m.MaximizeSeconds.Observe(d.Seconds())
	m.LocalSearchesTotal.WithLabelValues("accepted").Add(float64(s.Accepted))
	m.LocalSearchesTotal.WithLabelValues("failed").Add(float64(s.Failed))
	m.LocalSearchesTotal.WithLabelValues("duplicate").Add(float64(s.Duplicates))
}

// Observed implements generator.Observer.
func (m *Metrics) Observed(loss, budget float64) {
	if math.IsInf(loss, 0) || math.IsNaN(loss) {
		m.ObservationsTotal.WithLabelValues("failed").Inc()
		return
	}
	m.ObservationsTotal.WithLabelValues("success").Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.best[budget]; ok && prev <= loss {
		return
	}
	m.best[budget] = loss
	m.BestLoss.WithLabelValues(strconv.FormatFloat(budget, 'g', -1, 64)).Set(loss)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component string) {
	m.ErrorsTotal.WithLabelValues(component).Inc()
}

var _ generator.Observer = (*Metrics)(nil)
