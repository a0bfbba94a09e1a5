package dto

import (
	"encoding/json"

	"github.com/cuongbtq/task-manage/internal/topology"
)

type CreateTaskRequest struct {
	Worker         string            `json:"worker" binding:"required"`
	TerminalStatus *int              `json:"terminal_status"`
	Args           []json.RawMessage `json:"args"`
}

type CreateTaskResponse struct {
	RecordID string `json:"record_id"`
	Worker   string `json:"worker"`
}

type ListTasksRequest struct {
	Worker   string `form:"worker"`
	Status   *int   `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListTasksResponse struct {
	Tasks      []TaskDTO `json:"tasks"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type TaskDTO struct {
	RecordID     string          `json:"record_id"`
	Worker       string          `json:"worker"`
	Args         json.RawMessage `json:"args"`
	BrokerTaskID string          `json:"task_id,omitempty"`
	Status       int             `json:"status"`
	Terminal     bool            `json:"terminal"`
	RetryTimes   int             `json:"retry_times"`
	Result       json.RawMessage `json:"result"`
	CreateTime   string          `json:"create_time"`
	UpdateTime   string          `json:"update_time"`
	FinishTime   string          `json:"finish_time,omitempty"`
}

type WorkerDTO struct {
	Name             string `json:"name"`
	Module           string `json:"module"`
	HasPostProcessor bool   `json:"has_post_processor"`
}

type ListWorkersResponse struct {
	Workers []WorkerDTO `json:"workers"`
}

type TopologyResponse struct {
	DefaultQueue string             `json:"default_queue"`
	Bindings     []topology.Binding `json:"bindings"`
}
