package router

import (
	"net/http"

	"github.com/cuongbtq/task-manage/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.Database != nil {
			if err := deps.Database.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "task-api-service",
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "task-api-service",
		})
	})

	gatherer := deps.Metrics
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	taskHandler := handler.NewTaskHandler(deps)
	catalogHandler := handler.NewCatalogHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		tasks := v1.Group("/tasks")
		{
			// POST /api/v1/tasks - Submit a job
			tasks.POST("", taskHandler.CreateTask)

			// GET /api/v1/tasks - List job records with filtering and pagination
			tasks.GET("", taskHandler.ListTasks)

			// GET /api/v1/tasks/:record_id - Get a job record
			tasks.GET("/:record_id", taskHandler.GetTask)
		}

		v1.GET("/workers", catalogHandler.ListWorkers)
		v1.GET("/topology", catalogHandler.GetTopology)
	}

	return r
}
