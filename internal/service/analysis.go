// Package service orchestrates the analysis pipeline: chunk collection,
// reassembly, fingerprinting, corpus matching, bookkeeping, and the
// downstream notification and alert fan-out.
package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marinewatch/marine/internal/alert"
	"github.com/marinewatch/marine/internal/domain"
	"github.com/marinewatch/marine/internal/fingerprint"
	"github.com/marinewatch/marine/internal/logger"
	"github.com/marinewatch/marine/internal/match"
	"github.com/marinewatch/marine/internal/media"
	"github.com/marinewatch/marine/internal/notify"
	"github.com/marinewatch/marine/internal/repository"
	"github.com/marinewatch/marine/internal/storage"
	"github.com/marinewatch/marine/internal/upload"
)

// Options carries the tunables of the analysis pipeline.
type Options struct {
	VisualDim    int
	AssembledDir string
}

// AnalysisService drives a video from raw bytes to a recorded analysis run.
type AnalysisService struct {
	chunks      *upload.Store
	reassembler *media.Reassembler
	extractor   media.HashExtractor
	audio       media.AudioFingerprinter
	corpus      *repository.CorpusRepository
	analyses    *repository.AnalysisRepository
	engine      *match.Engine
	hub         *notify.Hub
	alerts      alert.Publisher
	archive     storage.ObjectStorage
	opts        Options

	metaMu sync.Mutex
	meta   map[string]SubmissionMeta
}

// SubmissionMeta is the caller-supplied descriptive data for a video.
type SubmissionMeta struct {
	UserEmail   string
	Title       string
	Description string
}

// SubmitChunkRequest is one chunk of a chunked upload.
type SubmitChunkRequest struct {
	VideoID string
	Index   int
	Total   int
	Payload []byte
	Meta    SubmissionMeta
}

// SubmitWholeVideoRequest is a complete video submitted in one request.
type SubmitWholeVideoRequest struct {
	Kind    domain.EntryKind
	Locator string
	Payload []byte
	Meta    SubmissionMeta
}

// NewAnalysisService wires the pipeline together.
// Parameters:
//   - chunks: upload session store.
//   - reassembler: chunk joiner.
//   - extractor: keyframe hash source.
//   - audio: audio spectrum source; use media.NoopAudioFingerprinter to disable.
//   - corpus: corpus entry repository.
//   - analyses: analysis record repository.
//   - engine: similarity scanner.
//   - hub: live notification hub.
//   - alerts: piracy alert publisher; use alert.NoopPublisher to disable.
//   - archive: artifact archive, nil to disable archiving.
//   - opts: pipeline tunables.
// Returns:
//   - *AnalysisService: ready service.
func NewAnalysisService(
	chunks *upload.Store,
	reassembler *media.Reassembler,
	extractor media.HashExtractor,
	audio media.AudioFingerprinter,
	corpus *repository.CorpusRepository,
	analyses *repository.AnalysisRepository,
	engine *match.Engine,
	hub *notify.Hub,
	alerts alert.Publisher,
	archive storage.ObjectStorage,
	opts Options,
) *AnalysisService {
	if opts.VisualDim <= 0 {
		opts.VisualDim = domain.VisualDim
	}
	return &AnalysisService{
		chunks:      chunks,
		reassembler: reassembler,
		extractor:   extractor,
		audio:       audio,
		corpus:      corpus,
		analyses:    analyses,
		engine:      engine,
		hub:         hub,
		alerts:      alerts,
		archive:     archive,
		opts:        opts,
		meta:        make(map[string]SubmissionMeta),
	}
}

// SubmitChunk stores one chunk. The chunk that completes the session wins
// the processing trigger and schedules the background run; every other
// submission, including duplicates arriving after completion, just records
// the payload.
//
// Parameters:
//   - ctx: request context; the background run detaches from it.
//   - req: chunk submission.
// Returns:
//   - *domain.SessionStatus: session snapshot after recording the chunk.
//   - error: ValidationError on inconsistent input, I/O errors otherwise.
func (s *AnalysisService) SubmitChunk(ctx context.Context, req SubmitChunkRequest) (*domain.SessionStatus, error) {
	s.rememberMeta(req.VideoID, req.Meta)

	complete, err := s.chunks.AcceptChunk(req.VideoID, req.Index, req.Total, req.Payload)
	if err != nil {
		return nil, err
	}

	if complete {
		logger.CtxInfo(ctx, "All %d chunks received for video %s, scheduling analysis", req.Total, req.VideoID)
		s.runBackground(req.VideoID, req.Total)
	}

	return s.chunks.Status(req.VideoID)
}

// TriggerAnalysis re-runs the pipeline for a completed session. The run is
// synchronous and idempotent: the corpus entry is updated in place and a
// fresh analysis record is appended. A run already in flight surfaces as
// ErrConcurrencyConflict, which callers treat as benign.
//
// Parameters:
//   - ctx: request context.
//   - videoID: upload session key.
//   - total: expected chunk count, checked against the session; 0 skips the
//     check.
// Returns:
//   - *domain.AnalysisRunResult: outcome of the run.
//   - error: NotFoundError, ValidationError, ErrConcurrencyConflict, or a
//     pipeline failure.
func (s *AnalysisService) TriggerAnalysis(ctx context.Context, videoID string, total int) (*domain.AnalysisRunResult, error) {
	if err := s.chunks.TryBeginProcessing(videoID, total); err != nil {
		return nil, err
	}

	result, err := s.processSession(ctx, videoID)
	if err != nil {
		s.chunks.MarkFailed(videoID, err)
		return nil, err
	}
	s.chunks.MarkProcessed(videoID)
	return result, nil
}

// SubmitWholeVideo analyzes a complete video synchronously, bypassing the
// chunk session machinery. Uploaded submissions are scanned against the
// crawled corpus and vice versa.
//
// Parameters:
//   - ctx: request context.
//   - req: whole-video submission.
// Returns:
//   - *domain.AnalysisRunResult: outcome of the run.
//   - error: ValidationError on bad input or a pipeline failure.
func (s *AnalysisService) SubmitWholeVideo(ctx context.Context, req SubmitWholeVideoRequest) (*domain.AnalysisRunResult, error) {
	if req.Kind != domain.EntryKindUploaded && req.Kind != domain.EntryKindCrawled {
		return nil, domain.NewValidationError("unknown corpus kind %q", req.Kind)
	}
	if req.Locator == "" {
		return nil, domain.NewValidationError("source locator must not be empty")
	}
	if len(req.Payload) == 0 {
		return nil, domain.NewValidationError("video payload must not be empty")
	}

	if err := os.MkdirAll(s.opts.AssembledDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.opts.AssembledDir, "whole-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp video: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.Write(req.Payload); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp video: %w", err)
	}
	tmp.Close()

	return s.AnalyzeFile(ctx, path, req.Kind, req.Locator, req.Meta)
}

// Status returns the current session snapshot for a chunked upload.
func (s *AnalysisService) Status(ctx context.Context, videoID string) (*domain.SessionStatus, error) {
	return s.chunks.Status(videoID)
}

// LatestResult returns the most recent analysis record for a video, given
// either its corpus entry ID or its source locator.
func (s *AnalysisService) LatestResult(ctx context.Context, videoID string) (*domain.AnalysisRecord, error) {
	if record, err := s.analyses.LatestForVideo(ctx, videoID); err == nil {
		return record, nil
	} else if !domain.IsNotFound(err) {
		return nil, err
	}

	for _, kind := range []domain.EntryKind{domain.EntryKindCrawled, domain.EntryKindUploaded} {
		entry, err := s.corpus.GetByKindAndLocator(ctx, kind, videoID)
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		return s.analyses.LatestForVideo(ctx, entry.ID)
	}
	return nil, domain.NewNotFoundError("analysis record", videoID)
}

// FlaggedReports lists flagged analysis records, newest first.
func (s *AnalysisService) FlaggedReports(ctx context.Context, limit, offset int) ([]domain.AnalysisRecord, error) {
	return s.analyses.ListFlagged(ctx, limit, offset)
}

// ArtifactURL returns the archive URL for the video behind an analysis
// record, or "" when archiving is disabled or the record carries no
// reference. Comparison records point at their crawled side, the copy that
// is the actual evidence.
func (s *AnalysisService) ArtifactURL(record *domain.AnalysisRecord) string {
	if s.archive == nil || record == nil {
		return ""
	}
	kind, entryID := artifactRef(record)
	if entryID == "" {
		return ""
	}
	return s.archive.GetURL(storage.VideoKey(string(kind), entryID))
}

func artifactRef(record *domain.AnalysisRecord) (domain.EntryKind, string) {
	switch {
	case record.CrawledVideoID != nil:
		return domain.EntryKindCrawled, *record.CrawledVideoID
	case record.UploadedVideoID != nil:
		return domain.EntryKindUploaded, *record.UploadedVideoID
	}
	return "", ""
}

// OpenArtifact streams the archived copy of an analyzed video, given either
// its corpus entry ID or its source locator. The caller closes the reader.
//
// Parameters:
//   - ctx: request context.
//   - videoID: corpus entry ID or source locator.
// Returns:
//   - io.ReadCloser: archived video bytes.
//   - error: NotFoundError when archiving is off, the entry is unknown or
//     the object is gone; PersistenceError on archive failures.
func (s *AnalysisService) OpenArtifact(ctx context.Context, videoID string) (io.ReadCloser, error) {
	if s.archive == nil {
		return nil, domain.NewNotFoundError("archived artifact", videoID)
	}

	entry, err := s.resolveEntry(ctx, videoID)
	if err != nil {
		return nil, err
	}

	key := storage.VideoKey(string(entry.Kind), entry.ID)
	ok, err := s.archive.Exists(ctx, key)
	if err != nil {
		return nil, domain.NewPersistenceError("artifact lookup", err)
	}
	if !ok {
		return nil, domain.NewNotFoundError("archived artifact", videoID)
	}

	rc, err := s.archive.Download(ctx, key)
	if err != nil {
		return nil, domain.NewPersistenceError("artifact download", err)
	}
	return rc, nil
}

// resolveEntry looks a video up by entry ID first, then by source locator
// across both corpus populations.
func (s *AnalysisService) resolveEntry(ctx context.Context, videoID string) (*domain.CorpusEntry, error) {
	if entry, err := s.corpus.GetByID(ctx, videoID); err == nil {
		return entry, nil
	} else if !domain.IsNotFound(err) {
		return nil, err
	}

	for _, kind := range []domain.EntryKind{domain.EntryKindCrawled, domain.EntryKindUploaded} {
		entry, err := s.corpus.GetByKindAndLocator(ctx, kind, videoID)
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		return entry, nil
	}
	return nil, domain.NewNotFoundError("corpus entry", videoID)
}

// runBackground detaches a processing run from the submitting request. The
// run must never take the process down with it, so panics are contained and
// recorded as a session failure.
func (s *AnalysisService) runBackground(videoID string, total int) {
	go func() {
		ctx := logger.SetVideoID(context.Background(), videoID)
		ctx = logger.SetComponent(ctx, "background-analysis")

		defer func() {
			if r := recover(); r != nil {
				logger.CtxError(ctx, "Analysis run panicked: %v", r)
				s.chunks.MarkFailed(videoID, fmt.Errorf("analysis panicked: %v", r))
			}
		}()

		if err := s.chunks.TryBeginProcessing(videoID, total); err != nil {
			// Losing the trigger race is fine; the winner does the work.
			logger.CtxWarn(ctx, "Skipping background run: %v", err)
			return
		}

		if _, err := s.processSession(ctx, videoID); err != nil {
			logger.CtxError(ctx, "Analysis run failed: %v", err)
			s.chunks.MarkFailed(videoID, err)
			return
		}
		s.chunks.MarkProcessed(videoID)
	}()
}

// processSession reassembles a session's chunks and runs the analysis. The
// caller owns the state transition bracketing (TryBeginProcessing before,
// MarkProcessed/MarkFailed after).
func (s *AnalysisService) processSession(ctx context.Context, videoID string) (*domain.AnalysisRunResult, error) {
	status, err := s.chunks.Status(videoID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.opts.AssembledDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	videoPath := filepath.Join(s.opts.AssembledDir, videoID+".mp4")

	if err := s.reassembler.Reassemble(ctx, s.chunks.ChunkDir(videoID), status.TotalChunks, videoPath); err != nil {
		return nil, err
	}
	defer os.Remove(videoPath)

	// Chunked sessions enter the corpus as crawled content keyed by their
	// video ID and are scanned against the uploaded references.
	// The chunk files stay on disk: an explicit re-trigger must be able to
	// reassemble the same input again.
	return s.AnalyzeFile(ctx, videoPath, domain.EntryKindCrawled, videoID, s.takeMeta(videoID))
}

// AnalyzeFile runs the fingerprint-match-record pipeline for one video file.
// It is the shared core behind chunked sessions, whole-video submissions,
// and directory ingestion.
//
// Parameters:
//   - ctx: cancellation context.
//   - path: local video file.
//   - kind: corpus population the video belongs to.
//   - locator: logical key within the population (video ID or URL).
//   - meta: caller-supplied descriptive data.
// Returns:
//   - *domain.AnalysisRunResult: outcome of the run.
//   - error: pipeline failure; nothing is recorded on error.
func (s *AnalysisService) AnalyzeFile(ctx context.Context, path string, kind domain.EntryKind, locator string, meta SubmissionMeta) (*domain.AnalysisRunResult, error) {
	start := time.Now()
	ctx = logger.SetAnalysisID(ctx, uuid.New().String())

	extracted, err := s.extractor.ExtractHashes(ctx, path)
	if err != nil {
		return nil, err
	}

	vec, err := fingerprint.FromHashes(extracted.Hashes, s.opts.VisualDim)
	if err != nil {
		return nil, err
	}

	var spectrum domain.Vector
	if s.audio != nil {
		spectrum, err = s.audio.Fingerprint(ctx, path)
		if err != nil {
			// Audio is supplementary; a dead audio service never sinks a run.
			logger.CtxWarn(ctx, "Audio fingerprinting failed: %v", err)
			spectrum = nil
		}
	}

	counterKind := domain.EntryKindCrawled
	if kind == domain.EntryKindCrawled {
		counterKind = domain.EntryKindUploaded
	}

	matches, err := s.engine.FindMatches(ctx, vec, counterKind)
	if err != nil {
		return nil, err
	}
	score := match.AggregateScore(matches)
	flagged := len(matches) > 0

	entry, err := s.buildEntry(ctx, kind, locator, meta, vec, spectrum, extracted, flagged)
	if err != nil {
		return nil, err
	}

	primary, comparisons := buildVariants(entry, kind, vec, matches, score, flagged)
	if err := s.analyses.RecordRun(ctx, entry, primary, comparisons); err != nil {
		return nil, err
	}

	result := &domain.AnalysisRunResult{
		VideoID:    locator,
		EntryID:    entry.ID,
		Flagged:    flagged,
		MatchScore: score,
		Matches:    matches,
	}

	s.fanOut(ctx, result, meta)
	s.archiveArtifact(ctx, path, kind, entry.ID)

	logger.With(logger.Fields{logger.FieldCount: len(matches)}).
		WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Analysis completed for %s (flagged=%v, score=%.2f)", locator, flagged, score)
	return result, nil
}

// buildEntry upserts the logical identity of the analyzed video: an entry
// keyed by (kind, locator) whose ID is stable across re-runs.
func (s *AnalysisService) buildEntry(ctx context.Context, kind domain.EntryKind, locator string, meta SubmissionMeta, vec, spectrum domain.Vector, extracted *media.ExtractResult, flagged bool) (*domain.CorpusEntry, error) {
	id := uuid.New().String()
	if existing, err := s.corpus.GetByKindAndLocator(ctx, kind, locator); err == nil {
		id = existing.ID
	} else if !domain.IsNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	return &domain.CorpusEntry{
		ID:            id,
		Kind:          kind,
		SourceLocator: locator,
		UserEmail:     meta.UserEmail,
		Title:         meta.Title,
		Description:   meta.Description,
		Width:         extracted.Width,
		Height:        extracted.Height,
		HashVector:    vec,
		AudioSpectrum: spectrum,
		Flagged:       flagged,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// buildVariants produces the run's primary record and one comparison per
// individual match, with the reference direction following the entry kind.
func buildVariants(entry *domain.CorpusEntry, kind domain.EntryKind, vec domain.Vector, matches []domain.Match, score float64, flagged bool) (domain.AnalysisVariant, []domain.AnalysisVariant) {
	payload := domain.JSONMap{
		"source_locator": entry.SourceLocator,
		"match_count":    len(matches),
	}

	var primary domain.AnalysisVariant
	if kind == domain.EntryKindUploaded {
		primary = domain.UploadedAnalysis{
			EntryID:     entry.ID,
			QueryVector: vec,
			Payload:     payload,
			Score:       score,
			Flagged:     flagged,
		}
	} else {
		primary = domain.CrawledAnalysis{
			EntryID:     entry.ID,
			QueryVector: vec,
			Payload:     payload,
			Score:       score,
			Flagged:     flagged,
		}
	}

	comparisons := make([]domain.AnalysisVariant, 0, len(matches))
	for _, m := range matches {
		comparison := domain.ComparisonAnalysis{
			Payload: domain.JSONMap{
				"matched_locator": m.SourceLocator,
				"similarity":      m.Similarity,
			},
			Score:   m.Similarity,
			Flagged: true,
		}
		if kind == domain.EntryKindUploaded {
			comparison.UploadedID = entry.ID
			comparison.CrawledID = m.EntryID
		} else {
			comparison.UploadedID = m.EntryID
			comparison.CrawledID = entry.ID
		}
		comparisons = append(comparisons, comparison)
	}
	return primary, comparisons
}

// fanOut pushes the outcome to live subscribers and, for flagged runs, to
// the alert topic. Both are best-effort.
func (s *AnalysisService) fanOut(ctx context.Context, result *domain.AnalysisRunResult, meta SubmissionMeta) {
	eventType := "analysis_completed"
	if result.Flagged {
		eventType = "piracy_found"
	}
	if meta.UserEmail != "" {
		s.hub.Publish(ctx, meta.UserEmail, notify.Event{
			Type:       eventType,
			VideoID:    result.VideoID,
			Flagged:    result.Flagged,
			MatchScore: result.MatchScore,
			Matches:    len(result.Matches),
			OccurredAt: time.Now().UTC(),
		})
	}

	if result.Flagged && s.alerts != nil {
		for _, m := range result.Matches {
			if err := s.alerts.PiracyFound(ctx, result.VideoID, m.SourceLocator, m.Similarity); err != nil {
				logger.CtxWarn(ctx, "Failed to publish alert: %v", err)
			}
		}
	}
}

// archiveArtifact uploads the analyzed video to the artifact archive when
// one is configured. Failures are logged, never fatal.
func (s *AnalysisService) archiveArtifact(ctx context.Context, path string, kind domain.EntryKind, entryID string) {
	if s.archive == nil {
		return
	}
	key := storage.VideoKey(string(kind), entryID)

	f, err := os.Open(path)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to open artifact for archiving: %v", err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		logger.CtxWarn(ctx, "Failed to stat artifact for archiving: %v", err)
		return
	}
	if err := s.archive.Upload(ctx, key, f, info.Size(), "video/mp4"); err != nil {
		logger.CtxWarn(ctx, "Failed to archive artifact %s: %v", key, err)
		return
	}
	logger.With(logger.Fields{logger.FieldSize: info.Size()}).
		Debug(ctx, "Archived artifact %s", key)
}

func (s *AnalysisService) rememberMeta(videoID string, meta SubmissionMeta) {
	if meta == (SubmissionMeta{}) {
		return
	}
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	if _, ok := s.meta[videoID]; !ok {
		s.meta[videoID] = meta
	}
}

// takeMeta returns the remembered metadata for a session without removing
// it, so idempotent re-runs keep the original attribution.
func (s *AnalysisService) takeMeta(videoID string) SubmissionMeta {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return s.meta[videoID]
}
