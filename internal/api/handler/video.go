package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/marinewatch/marine/internal/domain"
	"github.com/marinewatch/marine/internal/logger"
	"github.com/marinewatch/marine/internal/service"
)

// VideoHandler handles chunk submission, whole-video submission, analysis
// triggering, and session status.
type VideoHandler struct {
	analysis *service.AnalysisService
}

// NewVideoHandler creates a new video handler.
// Parameters:
//   - analysis: analysis pipeline service.
// Returns:
//   - *VideoHandler: handler instance.
func NewVideoHandler(analysis *service.AnalysisService) *VideoHandler {
	return &VideoHandler{analysis: analysis}
}

// SubmitChunk accepts one multipart chunk of a chunked upload.
//
// Form fields: video_id, chunk_index, total_chunks, optional user_email,
// title, description, and the chunk payload in the "chunk" file field.
func (h *VideoHandler) SubmitChunk(c *gin.Context) {
	videoID := c.PostForm("video_id")
	index, errIdx := strconv.Atoi(c.PostForm("chunk_index"))
	total, errTot := strconv.Atoi(c.PostForm("total_chunks"))
	if errIdx != nil || errTot != nil {
		respondError(c, domain.NewValidationError("chunk_index and total_chunks must be integers"))
		return
	}

	payload, err := readFormFile(c, "chunk")
	if err != nil {
		respondError(c, err)
		return
	}

	ctx := logger.SetVideoID(c.Request.Context(), videoID)
	c.Request = c.Request.WithContext(ctx)

	status, err := h.analysis.SubmitChunk(ctx, service.SubmitChunkRequest{
		VideoID: videoID,
		Index:   index,
		Total:   total,
		Payload: payload,
		Meta: service.SubmissionMeta{
			UserEmail:   c.PostForm("user_email"),
			Title:       c.PostForm("title"),
			Description: c.PostForm("description"),
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	code := http.StatusAccepted
	if status.State == domain.SessionCollecting {
		code = http.StatusOK
	}
	c.JSON(code, status)
}

// TriggerAnalysis re-runs the pipeline for a completed session. The optional
// total_chunks parameter (form or query) is checked against the session's
// recorded chunk count before any work starts.
func (h *VideoHandler) TriggerAnalysis(c *gin.Context) {
	videoID := c.Param("video_id")

	total := 0
	if raw := c.DefaultPostForm("total_chunks", c.Query("total_chunks")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondError(c, domain.NewValidationError("total_chunks must be a non-negative integer"))
			return
		}
		total = v
	}

	ctx := logger.SetVideoID(c.Request.Context(), videoID)

	result, err := h.analysis.TriggerAnalysis(ctx, videoID, total)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DownloadArtifact streams the archived copy of an analyzed video. The
// video_id path parameter is a corpus entry ID or a source locator.
func (h *VideoHandler) DownloadArtifact(c *gin.Context) {
	videoID := c.Param("video_id")
	ctx := logger.SetVideoID(c.Request.Context(), videoID)

	rc, err := h.analysis.OpenArtifact(ctx, videoID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+videoID+`.mp4"`)
	c.DataFromReader(http.StatusOK, -1, "video/mp4", rc, nil)
}

// SubmitWholeVideo accepts a complete video in one multipart request.
//
// Form fields: kind ("uploaded" or "crawled", default uploaded), locator,
// optional user_email, title, description, and the payload in the "video"
// file field.
func (h *VideoHandler) SubmitWholeVideo(c *gin.Context) {
	kind := domain.EntryKind(c.DefaultPostForm("kind", string(domain.EntryKindUploaded)))
	locator := c.PostForm("locator")

	payload, err := readFormFile(c, "video")
	if err != nil {
		respondError(c, err)
		return
	}

	ctx := logger.SetVideoID(c.Request.Context(), locator)
	result, err := h.analysis.SubmitWholeVideo(ctx, service.SubmitWholeVideoRequest{
		Kind:    kind,
		Locator: locator,
		Payload: payload,
		Meta: service.SubmissionMeta{
			UserEmail:   c.PostForm("user_email"),
			Title:       c.PostForm("title"),
			Description: c.PostForm("description"),
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Status returns the session snapshot and, when available, the most recent
// analysis outcome for a chunked upload.
func (h *VideoHandler) Status(c *gin.Context) {
	videoID := c.Param("video_id")
	ctx := c.Request.Context()

	status, err := h.analysis.Status(ctx, videoID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"session": status}
	if record, err := h.analysis.LatestResult(ctx, videoID); err == nil {
		resp["latest_analysis"] = record
	}
	c.JSON(http.StatusOK, resp)
}

// readFormFile reads one uploaded file field fully into memory.
func readFormFile(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, domain.NewValidationError("missing %q file field", field)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, domain.NewValidationError("unreadable %q file field", field)
	}
	defer f.Close()

	payload, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.NewValidationError("failed to read %q file field", field)
	}
	return payload, nil
}
