package handler

import (
	"net/http"
	"strconv"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/api/middleware"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListResponse is the envelope for paginated listings.
type ListResponse struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// respondError writes err as a JSON error body. Internal errors are logged and
// replaced by a generic message.
func respondError(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		middleware.GetLogger(c).WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, apperr.ErrorResponse{
			Error:   apperr.ErrInternal.Code,
			Message: apperr.ErrInternal.Message,
		})
		return
	}

	if e.Status >= http.StatusInternalServerError {
		middleware.GetLogger(c).WithError(err).Warn("Upstream dependency failed")
	}
	c.JSON(e.Status, apperr.ErrorResponse{Error: e.Code, Message: e.Message})
}

// badRequest writes a validation error for malformed input.
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, apperr.ErrorResponse{
		Error:   apperr.ErrValidation.Code,
		Message: message,
	})
}

// pagination parses page and page_size query parameters.
// Returns page (1-based), page size, offset and whether the values were valid.
func pagination(c *gin.Context) (int, int, int, bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		badRequest(c, "page must be a positive integer")
		return 0, 0, 0, false
	}
	size, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || size < 1 {
		badRequest(c, "page_size must be a positive integer")
		return 0, 0, 0, false
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size, (page - 1) * size, true
}
