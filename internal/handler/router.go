package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docsearch/internal/middleware"
)

type RouterDeps struct {
	Ingest  *IngestHandler
	Query   *QueryHandler
	Sources *SourceHandler
	Status  *StatusHandler
	Upload  *UploadHandler
	APIKey  string
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/status/health", deps.Status.Health)

	keyed := api.Group("")
	keyed.Use(middleware.APIKey(deps.APIKey))
	keyed.POST("/ingest", deps.Ingest.Create)
	keyed.GET("/ingest/:id", deps.Ingest.Get)
	keyed.POST("/sync", deps.Ingest.Sync)
	keyed.POST("/query", middleware.RateLimit(100*time.Millisecond), deps.Query.Query)
	keyed.GET("/sources", deps.Sources.List)
	keyed.DELETE("/sources/:id", deps.Sources.Delete)
	keyed.POST("/upload", deps.Upload.Upload)
	keyed.GET("/upload/:key", deps.Upload.Download)
}
