package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/marinewatch/marine/internal/domain"
	"github.com/marinewatch/marine/internal/service"
)

// ReportHandler exposes the flagged analysis history.
type ReportHandler struct {
	analysis *service.AnalysisService
}

// NewReportHandler creates a new report handler.
// Parameters:
//   - analysis: analysis pipeline service.
// Returns:
//   - *ReportHandler: handler instance.
func NewReportHandler(analysis *service.AnalysisService) *ReportHandler {
	return &ReportHandler{analysis: analysis}
}

// flaggedReport is one flagged record plus the archive URL of the evidence
// copy, when archiving is enabled.
type flaggedReport struct {
	domain.AnalysisRecord
	ArtifactURL string `json:"artifact_url,omitempty"`
}

// ListFlagged returns flagged analysis records, newest first. Supports
// limit and offset query parameters.
func (h *ReportHandler) ListFlagged(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.analysis.FlaggedReports(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	reports := make([]flaggedReport, 0, len(records))
	for i := range records {
		reports = append(reports, flaggedReport{
			AnalysisRecord: records[i],
			ArtifactURL:    h.analysis.ArtifactURL(&records[i]),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"reports": reports,
		"count":   len(reports),
	})
}
