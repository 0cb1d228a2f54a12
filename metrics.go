package rigel

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for pipeline activity.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	stageRetries  *prometheus.CounterVec
	solvesActive  prometheus.Gauge
	answers       *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the metrics registered with the global Prometheus
// registry. Collectors are created once so several pipelines can share them.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics registers the pipeline collectors with reg and panics on
// any registration error other than an identical collector already being
// present.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rigel",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
		},
		[]string{"stage", "status"},
	)
	stageFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rigel",
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Stage failures, recovered or not, by reason.",
		},
		[]string{"stage", "reason"},
	)
	stageRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rigel",
			Subsystem: "pipeline",
			Name:      "stage_retries_total",
			Help:      "Number of times a stage attempt was retried.",
		},
		[]string{"stage"},
	)
	solvesActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rigel",
			Subsystem: "pipeline",
			Name:      "solves_active",
			Help:      "Number of solves currently in progress.",
		},
	)
	answers := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rigel",
			Subsystem: "pipeline",
			Name:      "answers_total",
			Help:      "Final answers produced, by the stage that produced them.",
		},
		[]string{"source"},
	)

	collectors := []prometheus.Collector{stageDuration, stageFailures, stageRetries, solvesActive, answers}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch target := collector.(type) {
				case *prometheus.HistogramVec:
					stageDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case *prometheus.CounterVec:
					switch target {
					case stageFailures:
						stageFailures = already.ExistingCollector.(*prometheus.CounterVec)
					case stageRetries:
						stageRetries = already.ExistingCollector.(*prometheus.CounterVec)
					case answers:
						answers = already.ExistingCollector.(*prometheus.CounterVec)
					}
				case prometheus.Gauge:
					solvesActive = already.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		stageDuration: stageDuration,
		stageFailures: stageFailures,
		stageRetries:  stageRetries,
		solvesActive:  solvesActive,
		answers:       answers,
	}
}

// ObserveStageDuration records the time spent in a stage.
func (m *Metrics) ObserveStageDuration(stage Stage, status string, duration time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage), status).Observe(duration.Seconds())
}

// IncStageFailure counts a stage failure, labelled by ErrorKind(err).
func (m *Metrics) IncStageFailure(stage Stage, err error) {
	if m == nil || m.stageFailures == nil {
		return
	}
	m.stageFailures.WithLabelValues(string(stage), ErrorKind(err)).Inc()
}

// IncStageRetry counts a retried stage attempt.
func (m *Metrics) IncStageRetry(stage Stage) {
	if m == nil || m.stageRetries == nil {
		return
	}
	m.stageRetries.WithLabelValues(string(stage)).Inc()
}

// IncActiveSolves marks a solve as started.
func (m *Metrics) IncActiveSolves() {
	if m == nil || m.solvesActive == nil {
		return
	}
	m.solvesActive.Inc()
}

// DecActiveSolves marks a solve as finished.
func (m *Metrics) DecActiveSolves() {
	if m == nil || m.solvesActive == nil {
		return
	}
	m.solvesActive.Dec()
}

// IncAnswer counts a final answer by its source.
func (m *Metrics) IncAnswer(source AnswerSource) {
	if m == nil || m.answers == nil {
		return
	}
	m.answers.WithLabelValues(string(source)).Inc()
}
