package repository

import (
	"context"
	"errors"

	"github.com/marinewatch/marine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CorpusRepository handles corpus entry data operations.
type CorpusRepository struct {
	db *gorm.DB
}

// NewCorpusRepository creates a new CorpusRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CorpusRepository: repository instance bound to db.
func NewCorpusRepository(db *gorm.DB) *CorpusRepository {
	return &CorpusRepository{db: db}
}

// Upsert creates or updates a corpus entry keyed by (kind, source_locator).
// Reprocessing the same source updates the stored fingerprint in place and
// never duplicates the entry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: corpus entry to create or update.
// Returns:
//   - error: PersistenceError if the upsert fails.
func (r *CorpusRepository) Upsert(ctx context.Context, entry *domain.CorpusEntry) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kind"}, {Name: "source_locator"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_email", "title", "description", "width", "height",
			"hash_vector", "audio_spectrum", "flagged", "updated_at",
		}),
	}).Create(entry).Error
	if err != nil {
		return domain.NewPersistenceError("corpus upsert", err)
	}
	return nil
}

// GetByID retrieves a corpus entry by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: corpus entry ID.
// Returns:
//   - *domain.CorpusEntry: entry if found.
//   - error: NotFoundError if absent, PersistenceError otherwise.
func (r *CorpusRepository) GetByID(ctx context.Context, id string) (*domain.CorpusEntry, error) {
	var entry domain.CorpusEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("corpus entry", id)
		}
		return nil, domain.NewPersistenceError("corpus lookup", err)
	}
	return &entry, nil
}

// GetByKindAndLocator retrieves a corpus entry by its logical key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kind: corpus population.
//   - locator: source locator (video ID or crawled URL).
// Returns:
//   - *domain.CorpusEntry: entry if found.
//   - error: NotFoundError if absent, PersistenceError otherwise.
func (r *CorpusRepository) GetByKindAndLocator(ctx context.Context, kind domain.EntryKind, locator string) (*domain.CorpusEntry, error) {
	var entry domain.CorpusEntry
	if err := r.db.WithContext(ctx).
		First(&entry, "kind = ? AND source_locator = ?", kind, locator).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("corpus entry", locator)
		}
		return nil, domain.NewPersistenceError("corpus lookup", err)
	}
	return &entry, nil
}

// ListByKind retrieves all entries of one corpus population. Results are
// ordered by ID so scans are deterministic.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kind: corpus population to list.
// Returns:
//   - []domain.CorpusEntry: matching entries, possibly empty.
//   - error: PersistenceError if the query fails.
func (r *CorpusRepository) ListByKind(ctx context.Context, kind domain.EntryKind) ([]domain.CorpusEntry, error) {
	var entries []domain.CorpusEntry
	if err := r.db.WithContext(ctx).
		Where("kind = ?", kind).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, domain.NewPersistenceError("corpus scan", err)
	}
	return entries, nil
}

// SetFlagged updates the flagged marker on an entry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: corpus entry ID.
//   - flagged: new marker value.
// Returns:
//   - error: PersistenceError if the update fails.
func (r *CorpusRepository) SetFlagged(ctx context.Context, id string, flagged bool) error {
	if err := r.db.WithContext(ctx).
		Model(&domain.CorpusEntry{}).
		Where("id = ?", id).
		Update("flagged", flagged).Error; err != nil {
		return domain.NewPersistenceError("corpus flag update", err)
	}
	return nil
}

// CountByKind counts entries in one corpus population.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kind: corpus population to count.
// Returns:
//   - int64: number of entries.
//   - error: PersistenceError if the query fails.
func (r *CorpusRepository) CountByKind(ctx context.Context, kind domain.EntryKind) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.CorpusEntry{}).
		Where("kind = ?", kind).
		Count(&count).Error; err != nil {
		return 0, domain.NewPersistenceError("corpus count", err)
	}
	return count, nil
}
