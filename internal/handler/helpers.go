package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsearch/internal/pkg/errcode"
	appErr "github.com/xxxsen/docsearch/internal/pkg/errors"
	"github.com/xxxsen/docsearch/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case appErr.IsNotFound(err):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrNoSources):
		response.Error(c, errcode.ErrNoSources, "no sources given")
	case appErr.IsConflict(err):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrStoreGone):
		response.Error(c, errcode.ErrStoreUnavailable, "document store unavailable")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
