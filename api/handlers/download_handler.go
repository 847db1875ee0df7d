package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trippixn/mediagrab/internal/app"
	"github.com/trippixn/mediagrab/internal/domain"
)

// Submitter runs the download pipeline for one URL. Satisfied by
// *app.Orchestrator; narrowed to an interface so handler tests can fake it.
type Submitter interface {
	SubmitDownload(ctx context.Context, url string) (*domain.BatchResult, error)
}

// DownloadHandler handles download-related HTTP requests
type DownloadHandler struct {
	submitter Submitter
	history   domain.HistoryRepository
	logger    *zap.Logger
}

// NewDownloadHandler creates a new download handler. history may be nil.
func NewDownloadHandler(submitter Submitter, history domain.HistoryRepository, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		submitter: submitter,
		history:   history,
		logger:    logger,
	}
}

// DownloadRequest represents a request to download media from a URL
type DownloadRequest struct {
	URL string `json:"url" binding:"required"`
}

// Download handles POST /api/v1/downloads. The request is processed
// synchronously: the response carries the full ordered batch result.
func (h *DownloadHandler) Download(c *gin.Context) {
	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.submitter.SubmitDownload(c.Request.Context(), req.URL)
	if err != nil {
		h.writeError(c, req.URL, err)
		return
	}

	c.JSON(http.StatusOK, app.BuildPayload(result))
}

// writeError maps pipeline errors onto HTTP status codes.
func (h *DownloadHandler) writeError(c *gin.Context, url string, err error) {
	var fetchErr *domain.FetchError
	var resErr *domain.ResourceError

	switch {
	case errors.Is(err, domain.ErrUnknownPlatform):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRequestInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &fetchErr):
		h.logger.Warn("fetch failed",
			zap.String("url", url),
			zap.String("kind", string(fetchErr.Kind)),
			zap.Error(err))
		status := http.StatusBadGateway
		if fetchErr.Kind == domain.FetchNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error(), "kind": fetchErr.Kind})
	case errors.As(err, &resErr):
		h.logger.Error("resource failure", zap.String("url", url), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "request cancelled"})
	default:
		h.logger.Error("download failed", zap.String("url", url), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ListHistory handles GET /api/v1/downloads
func (h *DownloadHandler) ListHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "history is disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := h.history.FindRecent(limit)
	if err != nil {
		h.logger.Error("Failed to list history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, records)
}

// GetStats handles GET /api/v1/downloads/stats
func (h *DownloadHandler) GetStats(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "history is disabled"})
		return
	}

	stats, err := h.history.Stats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}
