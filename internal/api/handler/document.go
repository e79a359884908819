package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/api/middleware"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/domain"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/repository"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/service"
	"github.com/gin-gonic/gin"
)

// DocumentService is the ingestion surface used by DocumentHandler.
type DocumentService interface {
	Ingest(ctx context.Context, req service.IngestRequest) (*domain.Document, error)
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	ListDocuments(ctx context.Context, filter repository.DocumentFilter) ([]domain.Document, int64, error)
	DeleteDocument(ctx context.Context, id string) error
}

// DocumentHandler handles knowledge base document endpoints.
type DocumentHandler struct {
	documents      DocumentService
	maxUploadBytes int64
}

// NewDocumentHandler creates a new document handler.
// Parameters:
//   - documents: ingestion service.
//   - maxUploadBytes: largest accepted file; 0 disables the early check.
// Returns:
//   - *DocumentHandler: initialized handler.
func NewDocumentHandler(documents DocumentService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxUploadBytes: maxUploadBytes}
}

// UploadResponse is returned when a document is accepted for processing.
type UploadResponse struct {
	Document *domain.Document `json:"document"`
	TaskID   string           `json:"task_id"`
}

// Upload handles POST /api/v1/documents (multipart field "file").
// The document is processed in the background; clients poll the returned task.
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field 'file' is required")
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		respondError(c, apperr.New(apperr.ErrPayloadTooLarge,
			"file is %d bytes, limit is %d", fileHeader.Size, h.maxUploadBytes))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "failed to read uploaded file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		badRequest(c, fmt.Sprintf("failed to read uploaded file: %v", err))
		return
	}

	doc, err := h.documents.Ingest(c.Request.Context(), service.IngestRequest{
		Data:        data,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		TenantID:    middleware.TenantID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, UploadResponse{Document: doc, TaskID: doc.TaskID})
}

// List handles GET /api/v1/documents.
func (h *DocumentHandler) List(c *gin.Context) {
	page, size, offset, ok := pagination(c)
	if !ok {
		return
	}

	docs, total, err := h.documents.ListDocuments(c.Request.Context(), repository.DocumentFilter{
		Status:   domain.DocumentStatus(c.Query("status")),
		TenantID: middleware.TenantID(c),
		Limit:    size,
		Offset:   offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}

	c.JSON(http.StatusOK, ListResponse{Items: docs, Total: total, Page: page, PageSize: size})
}

// Get handles GET /api/v1/documents/:id.
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Delete handles DELETE /api/v1/documents/:id.
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
