package handler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/filestore"
	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/errcode"
	"github.com/xxxsen/ragdesk/internal/pkg/response"
	"github.com/xxxsen/ragdesk/internal/service"
)

type Ingester interface {
	Ingest(ctx context.Context, in service.IngestInput) (*service.IngestResult, error)
}

type DocumentManager interface {
	List(ctx context.Context, tenantID string, offset, limit uint) ([]model.Document, error)
	Get(ctx context.Context, tenantID, docID string) (*model.Document, error)
	Delete(ctx context.Context, tenantID, docID string) error
}

type DocumentHandler struct {
	ingest    Ingester
	documents DocumentManager
	archive   filestore.Store
	maxUpload int64
}

// NewDocumentHandler builds the handler; archive may be nil when raw
// uploads are not kept.
func NewDocumentHandler(ingest Ingester, documents DocumentManager, archive filestore.Store, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, documents: documents, archive: archive, maxUpload: maxUpload}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxUpload > 0 && file.Size > h.maxUpload {
		response.Error(c, errcode.ErrInvalidFile, "file exceeds "+formatUploadLimit(h.maxUpload))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "failed to read file")
		return
	}
	res, err := h.ingest.Ingest(c.Request.Context(), service.IngestInput{
		TenantID:   getTenantID(c),
		UploaderID: getUserID(c),
		Filename:   filepath.Base(file.Filename),
		FileType:   c.PostForm("file_type"),
		Data:       data,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *DocumentHandler) List(c *gin.Context) {
	offset, limit := pagination(c)
	docs, err := h.documents.List(c.Request.Context(), getTenantID(c), offset, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.List(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), getTenantID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), getTenantID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

// Raw streams the archived upload of a document back to its tenant.
func (h *DocumentHandler) Raw(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), getTenantID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	if h.archive == nil || doc.ArchiveKey == "" {
		c.Status(http.StatusNotFound)
		return
	}
	file, err := h.archive.Open(c.Request.Context(), doc.ArchiveKey)
	if err != nil {
		logutil.GetLogger(c.Request.Context()).Warn("open archived upload failed",
			zap.String("document_id", doc.ID), zap.String("key", doc.ArchiveKey), zap.Error(err))
		c.Status(http.StatusNotFound)
		return
	}
	defer file.Close()
	contentType := mime.TypeByExtension(filepath.Ext(doc.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
