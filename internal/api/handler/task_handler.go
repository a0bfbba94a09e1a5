package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/task-manage/internal/api/dto"
	"github.com/cuongbtq/task-manage/internal/job"
	"github.com/cuongbtq/task-manage/internal/job/storage"
	"github.com/cuongbtq/task-manage/internal/registry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateTask handles POST /api/v1/tasks
// Submits a job to a registered worker and returns its record id
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	terminalStatus := job.StatusTerminal
	if req.TerminalStatus != nil {
		terminalStatus = *req.TerminalStatus
	}
	if terminalStatus < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "terminal_status must not be negative",
		})
		return
	}

	h.logger.Info("CreateTask called",
		slog.String("worker", req.Worker),
		slog.Int("terminal_status", terminalStatus),
		slog.Int("args", len(req.Args)),
	)

	recordID, err := h.creator.CreateRaw(c.Request.Context(), req.Worker, terminalStatus, req.Args)
	if err != nil {
		if errors.Is(err, registry.ErrWorkerNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		h.logger.Error("Failed to create task", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create task",
		})
		return
	}

	c.JSON(http.StatusCreated, dto.CreateTaskResponse{
		RecordID: recordID,
		Worker:   req.Worker,
	})
}

// GetTask handles GET /api/v1/tasks/:record_id
// Retrieves the job record of a submitted job
func (h *TaskHandler) GetTask(c *gin.Context) {
	recordID := c.Param("record_id")

	if _, err := uuid.Parse(recordID); err != nil {
		h.logger.Error("Invalid record_id format", slog.String("record_id", recordID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "record_id must be a valid UUID",
		})
		return
	}

	rec, err := h.records.GetByID(c.Request.Context(), recordID)
	if err != nil {
		if errors.Is(err, job.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Task not found",
			})
			return
		}

		h.logger.Error("Failed to get task", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get task",
		})
		return
	}

	c.JSON(http.StatusOK, toTaskDTO(rec))
}

// ListTasks handles GET /api/v1/tasks
// Lists job records newest first with keyset pagination
func (h *TaskHandler) ListTasks(c *gin.Context) {
	var req dto.ListTasksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}

	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeRecordCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	records, err := h.records.List(c.Request.Context(), storage.RecordFilter{
		Worker:   req.Worker,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list tasks", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list tasks",
		})
		return
	}

	hasMore := len(records) > req.PageSize
	if hasMore {
		records = records[:req.PageSize]
	}

	tasks := make([]dto.TaskDTO, len(records))
	for i := range records {
		tasks[i] = toTaskDTO(&records[i])
	}

	var nextCursor string
	if hasMore {
		last := records[len(records)-1]
		nextCursor = EncodeRecordCursor(&storage.RecordCursor{
			CreateTime: last.CreateTime,
			ID:         last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListTasksResponse{
		Tasks:      tasks,
		NextCursor: nextCursor,
	})
}

func toTaskDTO(rec *job.Record) dto.TaskDTO {
	out := dto.TaskDTO{
		RecordID:     rec.ID,
		Worker:       rec.Worker,
		Args:         rec.Args.Raw(),
		BrokerTaskID: rec.BrokerTaskID,
		Status:       rec.Status,
		Terminal:     rec.IsTerminal(),
		RetryTimes:   rec.RetryTimes,
		Result:       rec.Result.Raw(),
		CreateTime:   rec.CreateTime.Format(time.RFC3339Nano),
		UpdateTime:   rec.UpdateTime.Format(time.RFC3339Nano),
	}
	if rec.FinishTime != nil {
		out.FinishTime = rec.FinishTime.Format(time.RFC3339Nano)
	}
	return out
}
