package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docsearch/internal/pkg/response"
	"github.com/xxxsen/docsearch/internal/service"
)

type SourceHandler struct {
	sources *service.SourceService
}

func NewSourceHandler(sources *service.SourceService) *SourceHandler {
	return &SourceHandler{sources: sources}
}

func (h *SourceHandler) List(c *gin.Context) {
	sources, err := h.sources.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"sources": sources})
}

func (h *SourceHandler) Delete(c *gin.Context) {
	deleted, err := h.sources.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted_fragments": deleted})
}
