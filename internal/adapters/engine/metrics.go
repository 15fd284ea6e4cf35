package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

const metricsNamespace = "chainflow"

// Metrics implements ports.MetricsRecorder on prometheus collectors.
type Metrics struct {
	runsStarted  *prometheus.CounterVec
	runsFinished *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	nodeRuns     *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	nodePanics   *prometheus.CounterVec
	swapAttempts *prometheus.CounterVec
}

// NewMetrics registers the engine collectors on reg. A nil reg creates a
// private registry, which keeps tests independent of each other.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_started_total",
			Help:      "Workflow runs started, by trigger type.",
		}, []string{"trigger_type"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_finished_total",
			Help:      "Workflow runs that reached a terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of workflow runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"status"}),
		nodeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "node_executions_total",
			Help:      "Dispatched nodes, by node type and outcome.",
		}, []string{"node_type", "status"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "node_duration_seconds",
			Help:      "Time spent inside node handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node_type"}),
		nodePanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "node_panics_total",
			Help:      "Handler panics recovered at the dispatcher boundary.",
		}, []string{"node_type"}),
		swapAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "swap_attempts_total",
			Help:      "Swap submission attempts, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.runsStarted,
		m.runsFinished,
		m.runDuration,
		m.nodeRuns,
		m.nodeDuration,
		m.nodePanics,
		m.swapAttempts,
	)
	return m
}

func (m *Metrics) RunStarted(triggerType domain.TriggerType) {
	m.runsStarted.WithLabelValues(string(triggerType)).Inc()
}

func (m *Metrics) RunFinished(status domain.RunStatus, duration time.Duration) {
	m.runsFinished.WithLabelValues(string(status)).Inc()
	m.runDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

func (m *Metrics) NodeExecuted(nodeType domain.NodeType, status domain.RunStatus, duration time.Duration) {
	m.nodeRuns.WithLabelValues(string(nodeType), string(status)).Inc()
	m.nodeDuration.WithLabelValues(string(nodeType)).Observe(duration.Seconds())
}

func (m *Metrics) SwapAttempt(outcome string) {
	m.swapAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPanic(nodeType domain.NodeType) {
	m.nodePanics.WithLabelValues(string(nodeType)).Inc()
}

var _ ports.MetricsRecorder = (*Metrics)(nil)
