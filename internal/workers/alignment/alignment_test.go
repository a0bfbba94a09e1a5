package alignment

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cuongbtq/task-manage/internal/task"
	"github.com/cuongbtq/task-manage/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAAR(t *testing.T) {
	tests := []struct {
		name  string
		ranks []int
		want  float64
	}{
		{name: "empty", ranks: nil, want: 0},
		{name: "perfect single", ranks: []int{1}, want: 1},
		{name: "perfect pair", ranks: []int{2, 1}, want: 1},
		{name: "offset pair", ranks: []int{5, 3}, want: 3.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AAR(tt.ranks), 1e-9)
		})
	}
}

func parseData(t *testing.T, s string) map[string]map[string]json.RawMessage {
	t.Helper()
	var data map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(s), &data))
	return data
}

func TestEvaluate(t *testing.T) {
	data := parseData(t, `{
		"e1": {"entity_type": "intrusion-set", "ground_truth_rank_new": {"a": 1}},
		"e2": {"entity_type": "intrusion-set", "ground_truth_rank_new": {"b": 3, "c": "5"}},
		"e3": {"entity_type": "malware", "ground_truth_rank_new": {"d": 20}},
		"e4": {"entity_type": "malware", "ground_truth_rank_new": {}},
		"e5": {"ground_truth_rank_new": {"e": 1}}
	}`)

	report, err := Evaluate(data, "")
	require.NoError(t, err)

	assert.Equal(t, 4, report.Entities)

	// samples: 1, 3, 5, 20, 1
	assert.InDelta(t, 2.0/5, report.Overall.Hit1, 1e-9)
	assert.InDelta(t, 4.0/5, report.Overall.Hit5, 1e-9)
	assert.InDelta(t, 4.0/5, report.Overall.Hit10, 1e-9)
	assert.InDelta(t, (1+1.0/3+1.0/5+1.0/20+1)/5, report.Overall.MRR, 1e-9)

	// aar per entity: e1=1, e2=3.5, e3=20, e5=1
	assert.InDelta(t, 2.0/4, report.Overall.AARHit1, 1e-9)
	assert.InDelta(t, 3.0/4, report.Overall.AARHit5, 1e-9)
	assert.InDelta(t, (1+1/3.5+1.0/20+1)/4, report.Overall.AARMRR, 1e-9)

	require.Contains(t, report.ByType, "intrusion-set")
	require.Contains(t, report.ByType, unknownType)
	assert.InDelta(t, 0.0, report.ByType["malware"].Hit10, 1e-9)
	assert.InDelta(t, 1.0, report.ByType[unknownType].AARHit1, 1e-9)
}

func TestEvaluate_InvalidRanks(t *testing.T) {
	tests := []string{
		`{"e1": {"ground_truth_rank_new": {"a": 0}}}`,
		`{"e1": {"ground_truth_rank_new": {"a": "x"}}}`,
		`{"e1": {"ground_truth_rank_new": [1, 2]}}`,
		`{"e1": {"entity_type": 7, "ground_truth_rank_new": {"a": 1}}}`,
		`{"e1": {"entity_type": ["malware"], "ground_truth_rank_new": {"a": 1}}}`,
	}

	for _, raw := range tests {
		_, err := Evaluate(parseData(t, raw), DefaultRankKey)
		assert.ErrorIs(t, err, task.ErrMalformedMessage, raw)
	}
}

func TestEvaluate_NullEntityTypeIsUnknown(t *testing.T) {
	report, err := Evaluate(parseData(t, `{"e1": {"entity_type": null, "ground_truth_rank_new": {"a": 1}}}`), DefaultRankKey)
	require.NoError(t, err)
	assert.Contains(t, report.ByType, unknownType)
}

func TestModule_EvalAndRound(t *testing.T) {
	m := New(logger.Discard())

	args := []json.RawMessage{
		json.RawMessage(`{"e1": {"ground_truth_rank": {"a": 3}}}`),
		json.RawMessage(`"ground_truth_rank"`),
	}
	out, err := m.eval(context.Background(), "rec-1", args)
	require.NoError(t, err)

	raw, err := json.Marshal(out)
	require.NoError(t, err)

	rounded, err := m.roundReport(context.Background(), raw)
	require.NoError(t, err)

	report := rounded.(Report)
	assert.Equal(t, 0.3333, report.Overall.MRR)
	assert.Equal(t, 1.0, report.Overall.Hit5)
	assert.Equal(t, 0.3333, report.ByType[unknownType].AARMRR)
}

func TestContribution(t *testing.T) {
	c := New(logger.Discard()).Contribution()
	require.Len(t, c.Workers, 1)
	assert.Equal(t, Eval, string(c.Workers[0].Name))
	assert.NotNil(t, c.Workers[0].PostProcessor)
}
