package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "task_manage"

// Task outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
	OutcomeUnknown = "unknown_task"
)

// Metrics holds the orchestrator collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	jobsCreated    *prometheus.CounterVec
	tasksExecuted  *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	resultsHandled *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		jobsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Jobs submitted through the task creator.",
		}, []string{"worker"}),
		tasksExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_executed_total",
			Help:      "Broker task deliveries by outcome.",
		}, []string{"task", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Time spent executing broker tasks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		resultsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_handled_total",
			Help:      "Result handler invocations by worker and kind.",
		}, []string{"worker", "kind"}),
	}

	for _, c := range []prometheus.Collector{m.jobsCreated, m.tasksExecuted, m.taskDuration, m.resultsHandled} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) JobCreated(worker string) {
	if m == nil {
		return
	}
	m.jobsCreated.WithLabelValues(worker).Inc()
}

func (m *Metrics) TaskExecuted(task, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.tasksExecuted.WithLabelValues(task, outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeFailure {
		m.taskDuration.WithLabelValues(task).Observe(seconds)
	}
}

// ResultHandled counts a result handler write. kind is one of
// "post_processed", "missing_post_processor", "progress" or "skipped_terminal".
func (m *Metrics) ResultHandled(worker, kind string) {
	if m == nil {
		return
	}
	m.resultsHandled.WithLabelValues(worker, kind).Inc()
}
