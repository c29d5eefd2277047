package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/middleware"
	"github.com/xxxsen/ragdesk/internal/pkg/errcode"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/pkg/response"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func getUserID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserIDKey)
}

func getTenantID(c *gin.Context) string {
	return c.GetString(middleware.ContextTenantIDKey)
}

// pagination reads offset and limit query values, clamping limit to maxPageSize.
func pagination(c *gin.Context) (uint, uint) {
	offset := uint(0)
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = uint(v)
	}
	limit := uint(defaultPageSize)
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = uint(min(v, maxPageSize))
	}
	return offset, limit
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("tenant_id", getTenantID(c)),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	var failed *appErr.IngestionFailedError
	switch {
	case errors.As(err, &failed):
		response.Error(c, errcode.ErrIngestionFailed, "ingestion failed, document_id="+failed.DocumentID)
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrDuplicateDocument):
		response.Error(c, errcode.ErrDuplicateDocument, "document already uploaded")
	case errors.Is(err, appErr.ErrUnsupportedType):
		response.Error(c, errcode.ErrUnsupportedType, err.Error())
	case errors.Is(err, appErr.ErrExtraction):
		response.Error(c, errcode.ErrExtraction, "text extraction failed")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrGeneration):
		response.Error(c, errcode.ErrGeneration, "answer generation failed")
	case errors.Is(err, appErr.ErrAIUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai provider unavailable")
	case errors.Is(err, appErr.ErrTransient):
		response.Error(c, errcode.ErrTransient, "temporary storage error, retry later")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
