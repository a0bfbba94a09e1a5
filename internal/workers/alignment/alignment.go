package alignment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/task-manage/internal/registry"
	"github.com/cuongbtq/task-manage/internal/task"
)

// Eval is the worker name of the alignment evaluation
const Eval = "task.alignment.eval"

const reportDecimals = 4

// Module is the alignment worker contribution
type Module struct {
	logger *slog.Logger
}

// New creates the module
func New(logger *slog.Logger) *Module {
	return &Module{logger: logger}
}

func (m *Module) Contribution() registry.Contribution {
	return registry.Contribution{
		Module: "alignment",
		Workers: []registry.Descriptor{
			{Name: Eval, Entry: m.eval, PostProcessor: m.roundReport},
		},
	}
}

// eval args: [data, rankKey?] where data maps entity ids to
// {"entity_type": ..., rankKey: {candidate: rank}}
func (m *Module) eval(_ context.Context, recordID string, args []json.RawMessage) (any, error) {
	var data map[string]map[string]json.RawMessage
	if err := task.DecodeArg(args, 0, &data); err != nil {
		return nil, err
	}

	rankKey := DefaultRankKey
	if len(args) > 1 {
		if err := task.DecodeArg(args, 1, &rankKey); err != nil {
			return nil, err
		}
	}

	report, err := Evaluate(data, rankKey)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Alignment evaluated",
		slog.String("record_id", recordID),
		slog.Int("entities", report.Entities),
		slog.Float64("hit1", report.Overall.Hit1),
		slog.Float64("mrr", report.Overall.MRR),
	)
	return report, nil
}

func (m *Module) roundReport(_ context.Context, result json.RawMessage) (any, error) {
	var report Report
	if err := json.Unmarshal(result, &report); err != nil {
		return nil, fmt.Errorf("failed to decode alignment report: %w", err)
	}

	report.Overall = report.Overall.Round(reportDecimals)
	for t, metrics := range report.ByType {
		report.ByType[t] = metrics.Round(reportDecimals)
	}
	return report, nil
}
