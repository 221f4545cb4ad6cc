package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/pipeline"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/service"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// IngestHandler serves uploads, reconciliation and index inspection.
type IngestHandler struct {
	ingestService service.IngestService
}

// NewIngestHandler returns an IngestHandler.
func NewIngestHandler(ingestService service.IngestService) *IngestHandler {
	return &IngestHandler{ingestService: ingestService}
}

// Upload stores the multipart "file" field and schedules its ingestion.
func (h *IngestHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		log.Error("[IngestHandler] failed to open upload", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer f.Close()

	task, err := h.ingestService.Upload(c.Request.Context(), fh.Filename, f)
	switch {
	case errors.Is(err, service.ErrUnsupportedFile):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		return
	case errors.Is(err, pipeline.ErrEmptyFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is empty"})
		return
	case err != nil:
		log.Errorf("[IngestHandler] upload of %s failed: %v", fh.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "data": task, "message": "success"})
}

// Reconcile re-ingests sources whose ledger holds failed chunks.
func (h *IngestHandler) Reconcile(c *gin.Context) {
	res, err := h.ingestService.Reconcile(c.Request.Context())
	if err != nil {
		h.fail(c, "reconcile", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": res, "message": "success"})
}

// Stats reports the vector store and ledger state.
func (h *IngestHandler) Stats(c *gin.Context) {
	stats, err := h.ingestService.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": stats, "message": "success"})
}

// SourceURL returns a temporary download link for the :source path param.
func (h *IngestHandler) SourceURL(c *gin.Context) {
	source := c.Param("source")
	url, err := h.ingestService.SourceURL(c.Request.Context(), source)
	if err != nil {
		h.fail(c, "source url", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": gin.H{"source": source, "url": url}, "message": "success"})
}

func (h *IngestHandler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrSourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrLedgerDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Errorf("[IngestHandler] %s failed: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
	}
}
