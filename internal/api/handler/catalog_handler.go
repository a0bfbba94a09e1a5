package handler

import (
	"net/http"

	"github.com/cuongbtq/task-manage/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// ListWorkers handles GET /api/v1/workers
func (h *CatalogHandler) ListWorkers(c *gin.Context) {
	descs := h.registry.Descriptors()

	workers := make([]dto.WorkerDTO, len(descs))
	for i, d := range descs {
		workers[i] = dto.WorkerDTO{
			Name:             string(d.Name),
			Module:           h.registry.Module(string(d.Name)),
			HasPostProcessor: d.PostProcessor != nil,
		}
	}

	c.JSON(http.StatusOK, dto.ListWorkersResponse{Workers: workers})
}

// GetTopology handles GET /api/v1/topology
func (h *CatalogHandler) GetTopology(c *gin.Context) {
	c.JSON(http.StatusOK, dto.TopologyResponse{
		DefaultQueue: h.topology.Default().Queue,
		Bindings:     h.topology.Bindings(),
	})
}
