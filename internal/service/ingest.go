package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/marinewatch/marine/internal/domain"
	"github.com/marinewatch/marine/internal/logger"
)

// IngestService walks a directory of crawled video files and feeds each one
// through the analysis pipeline with a worker pool.
type IngestService struct {
	analysis *AnalysisService
	workers  int
}

// IngestStats summarizes one ingestion pass.
type IngestStats struct {
	Scanned int
	Flagged int
	Failed  int
}

// NewIngestService creates an ingest service.
// Parameters:
//   - analysis: analysis pipeline to feed.
//   - workers: pool size; non-positive means 4.
// Returns:
//   - *IngestService: ready service.
func NewIngestService(analysis *AnalysisService, workers int) *IngestService {
	if workers <= 0 {
		workers = 4
	}
	return &IngestService{analysis: analysis, workers: workers}
}

// IngestDir analyzes every video file directly under dir as crawled corpus
// content. The file name (without extension) becomes the source locator, so
// re-ingesting a directory updates entries instead of duplicating them.
// Individual failures are counted and logged; the pass keeps going.
//
// Parameters:
//   - ctx: cancellation context; stops dispatching when done.
//   - dir: directory of video files.
// Returns:
//   - *IngestStats: counts for the pass.
//   - error: non-nil only when the directory cannot be read.
func (s *IngestService) IngestDir(ctx context.Context, dir string) (*IngestStats, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	jobs := make(chan string)
	stats := &IngestStats{}
	var statsMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				locator := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				runCtx := logger.SetVideoID(ctx, locator)

				start := time.Now()
				result, err := s.analysis.AnalyzeFile(runCtx, path, domain.EntryKindCrawled, locator, SubmissionMeta{})

				statsMu.Lock()
				stats.Scanned++
				switch {
				case err != nil:
					stats.Failed++
				case result.Flagged:
					stats.Flagged++
				}
				statsMu.Unlock()

				if err != nil {
					logger.CtxError(runCtx, "Ingest failed for %s: %v", path, err)
					continue
				}
				logger.With(logger.Fields{logger.FieldCount: len(result.Matches)}).
					WithDuration(time.Since(start).Milliseconds()).
					Info(runCtx, "Ingested %s (flagged=%v)", locator, result.Flagged)
			}
		}()
	}

	for _, entry := range entries {
		if entry.IsDir() || !isVideoFile(entry.Name()) {
			continue
		}
		select {
		case jobs <- filepath.Join(dir, entry.Name()):
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return stats, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	return stats, nil
}

func isVideoFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".mov", ".mkv", ".webm", ".avi":
		return true
	}
	return false
}
