package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docsearch/internal/model"
	appErr "github.com/xxxsen/docsearch/internal/pkg/errors"
	"github.com/xxxsen/docsearch/internal/pkg/response"
	"github.com/xxxsen/docsearch/internal/service"
)

type IngestHandler struct {
	ingest *service.IngestService
}

func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

// Create accepts an ingestion request and runs it in the background.
func (h *IngestHandler) Create(c *gin.Context) {
	var req model.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, appErr.ErrInvalid)
		return
	}
	jobID, err := h.ingest.CreateJob(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"job_id": jobID, "state": model.JobStatusPending})
}

// Get reports the state (and, when finished, the result) of a job.
func (h *IngestHandler) Get(c *gin.Context) {
	job, err := h.ingest.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, job)
}

// Sync runs the whole pipeline inline and returns the result directly.
func (h *IngestHandler) Sync(c *gin.Context) {
	var req model.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, appErr.ErrInvalid)
		return
	}
	result, err := h.ingest.RunSync(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"state": model.JobStatusSuccess, "result": result})
}
