package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docsearch/internal/model"
	appErr "github.com/xxxsen/docsearch/internal/pkg/errors"
	"github.com/xxxsen/docsearch/internal/pkg/response"
	"github.com/xxxsen/docsearch/internal/service"
)

type QueryHandler struct {
	search *service.SearchService
}

func NewQueryHandler(search *service.SearchService) *QueryHandler {
	return &QueryHandler{search: search}
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, appErr.ErrInvalid)
		return
	}
	res, err := h.search.Query(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}
