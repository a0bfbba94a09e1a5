package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cuongbtq/task-manage/internal/job"
	"github.com/cuongbtq/task-manage/internal/job/storage"
	"github.com/cuongbtq/task-manage/internal/registry"
	"github.com/cuongbtq/task-manage/internal/topology"
	"github.com/prometheus/client_golang/prometheus"
)

// JobCreator submits jobs. Satisfied by *orchestrator.Creator.
type JobCreator interface {
	CreateRaw(ctx context.Context, workerName string, terminalStatus int, args []json.RawMessage) (string, error)
}

// RecordReader reads job records. Satisfied by *storage.Storage.
type RecordReader interface {
	GetByID(ctx context.Context, id string) (*job.Record, error)
	List(ctx context.Context, filter storage.RecordFilter) ([]job.Record, error)
}

// HealthChecker reports whether a backing service is reachable. Satisfied by *postgresql.Client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Creator  JobCreator
	Records  RecordReader
	Registry *registry.Registry
	Topology *topology.Topology
	Metrics  prometheus.Gatherer
	Database HealthChecker
}

// TaskHandler handles job submission and job record queries
type TaskHandler struct {
	logger  *slog.Logger
	creator JobCreator
	records RecordReader
}

// NewTaskHandler creates a new TaskHandler instance
func NewTaskHandler(deps *Dependencies) *TaskHandler {
	return &TaskHandler{
		logger:  deps.Logger,
		creator: deps.Creator,
		records: deps.Records,
	}
}

// CatalogHandler serves the static worker registry and queue topology
type CatalogHandler struct {
	registry *registry.Registry
	topology *topology.Topology
}

// NewCatalogHandler creates a new CatalogHandler instance
func NewCatalogHandler(deps *Dependencies) *CatalogHandler {
	return &CatalogHandler{
		registry: deps.Registry,
		topology: deps.Topology,
	}
}
