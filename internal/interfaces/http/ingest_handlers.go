package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/ingest"
	"github.com/garyjia/invoicebot/internal/models"
)

// LedgerReader reads recorded attachment outcomes
type LedgerReader interface {
	Recent(ctx context.Context, limit int) ([]*models.LedgerEntry, error)
	CountByOutcome(ctx context.Context, since time.Time) (map[models.Outcome]int, error)
}

// CycleReporter exposes the most recent cycle report
type CycleReporter interface {
	LastReport() *ingest.Report
}

// IngestHandlers serves the ingestion ledger
type IngestHandlers struct {
	ledger LedgerReader
	cycles CycleReporter
	logger *zap.Logger
}

// NewIngestHandlers creates the ingestion handlers
func NewIngestHandlers(ledger LedgerReader, cycles CycleReporter, logger *zap.Logger) *IngestHandlers {
	return &IngestHandlers{
		ledger: ledger,
		cycles: cycles,
		logger: logger,
	}
}

const (
	defaultIngestionLimit = 50
	maxIngestionLimit     = 500
	// a year and a day
	maxSummaryHours = 24 * 366
)

// ListIngestionsRequest represents query parameters for listing outcomes
type ListIngestionsRequest struct {
	Limit int `form:"limit"`
}

// Register adds the ingestion routes under r
func (h *IngestHandlers) Register(r gin.IRouter) {
	r.GET("/ingestions", h.ListIngestions)
	r.GET("/ingestions/summary", h.Summary)
	r.GET("/ingestions/last", h.LastCycle)
}

// ListIngestions handles GET /api/ingestions
func (h *IngestHandlers) ListIngestions(c *gin.Context) {
	var req ListIngestionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid query parameters")
		return
	}
	switch {
	case req.Limit <= 0:
		req.Limit = defaultIngestionLimit
	case req.Limit > maxIngestionLimit:
		req.Limit = maxIngestionLimit
	}

	entries, err := h.ledger.Recent(c.Request.Context(), req.Limit)
	if err != nil {
		h.logger.Error("Failed to list ingestions", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to list ingestions")
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// Summary handles GET /api/ingestions/summary?hours=24
func (h *IngestHandlers) Summary(c *gin.Context) {
	var req struct {
		Hours int `form:"hours"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid query parameters")
		return
	}
	switch {
	case req.Hours <= 0:
		req.Hours = 24
	case req.Hours > maxSummaryHours:
		req.Hours = maxSummaryHours
	}

	since := time.Now().Add(-time.Duration(req.Hours) * time.Hour)
	counts, err := h.ledger.CountByOutcome(c.Request.Context(), since)
	if err != nil {
		h.logger.Error("Failed to summarize ingestions", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to summarize ingestions")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"since":    since.UTC().Format(time.RFC3339),
		"outcomes": counts,
	}})
}

// LastCycle handles GET /api/ingestions/last
func (h *IngestHandlers) LastCycle(c *gin.Context) {
	if h.cycles == nil {
		fail(c, http.StatusNotFound, "no cycle has run yet")
		return
	}
	report := h.cycles.LastReport()
	if report == nil {
		fail(c, http.StatusNotFound, "no cycle has run yet")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}
