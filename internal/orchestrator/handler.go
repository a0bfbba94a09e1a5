package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/task-manage/internal/job"
	"github.com/cuongbtq/task-manage/internal/metrics"
	"github.com/cuongbtq/task-manage/internal/registry"
)

// MissingPostProcessorError is stored as the result error when a terminal
// job's worker has no post-processor
const MissingPostProcessorError = "result handler not exists"

// Result handler outcomes, used as metric labels
const (
	kindPostProcessed   = "post_processed"
	kindMissing         = "missing_post_processor"
	kindProgress        = "progress"
	kindSkippedTerminal = "skipped_terminal"
)

// ResultHandler applies worker results to Job Records
type ResultHandler struct {
	registry *registry.Registry
	store    RecordStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewResultHandler creates a new ResultHandler
func NewResultHandler(reg *registry.Registry, store RecordStore, m *metrics.Metrics, logger *slog.Logger) *ResultHandler {
	return &ResultHandler{
		registry: reg,
		store:    store,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle records resultData for recordID. On terminal status the worker's
// post-processor transforms the result; a missing post-processor is recorded
// as an error payload instead of failing. Post-processor errors are returned
// unchanged. A record that is already terminal is left as is.
func (h *ResultHandler) Handle(ctx context.Context, resultData json.RawMessage, workerName, recordID string, status int) error {
	h.logger.Info("[Result Handler] Start handler",
		slog.String("worker", workerName),
		slog.String("record_id", recordID),
		slog.Int("status", status),
	)

	if isEmptyResult(resultData) {
		resultData = json.RawMessage(`{}`)
	}

	rec, err := h.store.GetOrCreate(ctx, recordID, workerName)
	if err != nil {
		return err
	}

	if rec.IsTerminal() {
		h.logger.Warn("[Result Handler] Record already terminal, skipping",
			slog.String("worker", workerName),
			slog.String("record_id", recordID),
			slog.Int("status", status),
		)
		h.metrics.ResultHandled(workerName, kindSkippedTerminal)
		return nil
	}

	result, kind, err := h.resolveResult(ctx, resultData, workerName, status)
	if err != nil {
		return err
	}

	now := h.now()
	rec.Result = job.JSON(result)
	rec.Status = status
	if job.IsTerminal(status) {
		rec.FinishTime = &now
	} else {
		rec.UpdateTime = now
	}

	if err := h.store.Save(ctx, rec); err != nil {
		if errors.Is(err, job.ErrRecordTerminal) {
			h.logger.Warn("[Result Handler] Record became terminal concurrently, skipping",
				slog.String("record_id", recordID),
			)
			h.metrics.ResultHandled(workerName, kindSkippedTerminal)
			return nil
		}
		return err
	}

	h.metrics.ResultHandled(workerName, kind)
	h.logger.Info("[Result Handler] Complete handler",
		slog.String("worker", workerName),
		slog.String("record_id", recordID),
		slog.Int("new_status", status),
	)
	return nil
}

func (h *ResultHandler) resolveResult(ctx context.Context, resultData json.RawMessage, workerName string, status int) (json.RawMessage, string, error) {
	if !job.IsTerminal(status) {
		return resultData, kindProgress, nil
	}

	h.logger.Info("[Result Handler] Status is terminal, run result handler and save result",
		slog.String("worker", workerName),
	)

	postProcess, ok := h.registry.PostProcessor(workerName)
	if !ok {
		h.logger.Error("[Result Handler] Worker has no result handler",
			slog.String("worker", workerName),
		)
		payload, err := json.Marshal(map[string]any{
			"error":  MissingPostProcessorError,
			"result": resultData,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode missing post-processor payload: %w", err)
		}
		return payload, kindMissing, nil
	}

	out, err := postProcess(ctx, resultData)
	if err != nil {
		return nil, "", fmt.Errorf("post-processor for %s failed: %w", workerName, err)
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode post-processed result: %w", err)
	}
	return payload, kindPostProcessed, nil
}

// isEmptyResult reports whether a worker returned nothing worth keeping:
// no payload, null, false, zero or an empty string, array or object
func isEmptyResult(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}

	switch string(trimmed) {
	case "null", "false", "0", `""`:
		return true
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case float64:
		return t == 0
	}
	return false
}
