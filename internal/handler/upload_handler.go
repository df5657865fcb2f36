package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docsearch/internal/model"
	appErr "github.com/xxxsen/docsearch/internal/pkg/errors"
	"github.com/xxxsen/docsearch/internal/pkg/response"
	"github.com/xxxsen/docsearch/internal/service"
)

type UploadHandler struct {
	uploads *service.UploadService
}

func NewUploadHandler(uploads *service.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// Upload takes a multipart pdf/markdown file and queues it for ingestion.
func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		handleError(c, appErr.ErrInvalid)
		return
	}
	opened, err := file.Open()
	if err != nil {
		handleError(c, appErr.ErrInvalid)
		return
	}
	defer opened.Close()
	key, jobID, err := h.uploads.Accept(c.Request.Context(), file.Filename, opened, file.Size, c.PostForm("version"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"file_key": key,
		"job_id":   jobID,
		"state":    model.JobStatusPending,
	})
}

// Download streams back an archived upload by its stored key.
func (h *UploadHandler) Download(c *gin.Context) {
	r, err := h.uploads.Open(c.Request.Context(), c.Param("key"))
	if err != nil {
		handleError(c, err)
		return
	}
	defer r.Close()
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, r)
}
