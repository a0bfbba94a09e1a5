package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.JobCreated("task.echo")
	m.JobCreated("task.echo")
	m.TaskExecuted("task.echo", OutcomeSuccess, 0.2)
	m.TaskExecuted("task.echo", OutcomeSkipped, 0)
	m.ResultHandled("task.echo", "post_processed")

	assert.Equal(t, 2.0, counterValue(t, m.jobsCreated.WithLabelValues("task.echo")))
	assert.Equal(t, 1.0, counterValue(t, m.tasksExecuted.WithLabelValues("task.echo", OutcomeSkipped)))
	assert.Equal(t, 1.0, counterValue(t, m.resultsHandled.WithLabelValues("task.echo", "post_processed")))

	_, err = New(reg)
	assert.Error(t, err, "registering twice must fail")
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobCreated("x")
		m.TaskExecuted("x", OutcomeFailure, 1)
		m.ResultHandled("x", "progress")
	})
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}
