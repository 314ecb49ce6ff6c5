package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marinewatch/marine/internal/domain"
)

// AnalysisRepository persists analysis outcomes.
type AnalysisRepository struct {
	db *gorm.DB
}

// NewAnalysisRepository creates a new AnalysisRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *AnalysisRepository: repository instance bound to db.
func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// RecordRun writes the full outcome of one analysis run in a single
// transaction: the corpus entry upsert, the primary analysis record, and a
// comparison record per individual match. Either everything lands or
// nothing does; a failed run leaves no partial bookkeeping behind.
//
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: corpus entry to upsert (fingerprint, resolution, flag state).
//   - primary: the run's owning analysis variant.
//   - comparisons: one comparison variant per above-threshold match.
// Returns:
//   - error: PersistenceError if any write fails; the transaction rolls back.
func (r *AnalysisRepository) RecordRun(ctx context.Context, entry *domain.CorpusEntry, primary domain.AnalysisVariant, comparisons []domain.AnalysisVariant) error {
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if entry != nil {
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "kind"}, {Name: "source_locator"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"user_email", "title", "description", "width", "height",
					"hash_vector", "audio_spectrum", "flagged", "updated_at",
				}),
			}).Create(entry).Error; err != nil {
				return err
			}
		}

		record := primary.Record()
		record.ID = uuid.New().String()
		record.AnalyzedAt = now
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		for _, c := range comparisons {
			cr := c.Record()
			cr.ID = uuid.New().String()
			cr.AnalyzedAt = now
			if err := tx.Create(cr).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.NewPersistenceError("analysis run", err)
	}
	return nil
}

// LatestForVideo retrieves the most recent primary record referencing the
// given video ID in either reference column.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - videoID: uploaded or crawled entry ID.
// Returns:
//   - *domain.AnalysisRecord: most recent record if found.
//   - error: NotFoundError if none exists, PersistenceError otherwise.
func (r *AnalysisRepository) LatestForVideo(ctx context.Context, videoID string) (*domain.AnalysisRecord, error) {
	var record domain.AnalysisRecord
	err := r.db.WithContext(ctx).
		Where("uploaded_video_id = ? OR crawled_video_id = ?", videoID, videoID).
		Order("analyzed_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("analysis record", videoID)
		}
		return nil, domain.NewPersistenceError("analysis lookup", err)
	}
	return &record, nil
}

// ListFlagged retrieves flagged analysis records, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records; non-positive means 100.
//   - offset: number of records to skip.
// Returns:
//   - []domain.AnalysisRecord: flagged records.
//   - error: PersistenceError if the query fails.
func (r *AnalysisRepository) ListFlagged(ctx context.Context, limit, offset int) ([]domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []domain.AnalysisRecord
	if err := r.db.WithContext(ctx).
		Where("flagged = ?", true).
		Order("analyzed_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, domain.NewPersistenceError("flagged listing", err)
	}
	return records, nil
}

// ComparisonsFor retrieves the comparison records attached to a run's
// primary entry, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - videoID: uploaded or crawled entry ID.
// Returns:
//   - []domain.AnalysisRecord: comparison records.
//   - error: PersistenceError if the query fails.
func (r *AnalysisRepository) ComparisonsFor(ctx context.Context, videoID string) ([]domain.AnalysisRecord, error) {
	var records []domain.AnalysisRecord
	if err := r.db.WithContext(ctx).
		Where("analysis_type = ? AND (uploaded_video_id = ? OR crawled_video_id = ?)",
			domain.AnalysisTypeComparison, videoID, videoID).
		Order("analyzed_at DESC").
		Find(&records).Error; err != nil {
		return nil, domain.NewPersistenceError("comparison listing", err)
	}
	return records, nil
}
