// Package match scans a corpus population for entries similar to a query
// fingerprint vector.
package match

import (
	"context"
	"sort"
	"time"

	"github.com/marinewatch/marine/internal/domain"
	"github.com/marinewatch/marine/internal/fingerprint"
	"github.com/marinewatch/marine/internal/logger"
)

// CorpusScanner provides the entries of one corpus population.
type CorpusScanner interface {
	ListByKind(ctx context.Context, kind domain.EntryKind) ([]domain.CorpusEntry, error)
}

// Engine runs exact brute-force similarity scans over the corpus. The
// corpus sizes involved (thousands of entries, 64-dimension vectors) keep a
// full scan cheap, and exact recall means a pirated copy is never missed to
// index approximation.
type Engine struct {
	corpus    CorpusScanner
	threshold float64
}

// NewEngine creates a match engine.
// Parameters:
//   - corpus: corpus entry source.
//   - threshold: similarity percentage below which matches are discarded.
// Returns:
//   - *Engine: configured engine.
func NewEngine(corpus CorpusScanner, threshold float64) *Engine {
	return &Engine{corpus: corpus, threshold: threshold}
}

// Threshold returns the engine's configured similarity threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// FindMatches scans all entries of the given kind and returns those whose
// hash vector's cosine similarity to query meets the threshold. Results are
// ordered by similarity descending, ties broken by entry ID ascending, so a
// scan over the same corpus state is deterministic. Entries without a
// stored vector are skipped.
//
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - query: normalized query fingerprint.
//   - kind: corpus population to scan.
// Returns:
//   - []domain.Match: above-threshold matches, possibly empty.
//   - error: PersistenceError if the corpus scan fails.
func (e *Engine) FindMatches(ctx context.Context, query domain.Vector, kind domain.EntryKind) ([]domain.Match, error) {
	start := time.Now()

	entries, err := e.corpus.ListByKind(ctx, kind)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.Match, 0)
	for _, entry := range entries {
		if entry.HashVector.IsZero() {
			continue
		}
		sim := fingerprint.Cosine(query, entry.HashVector)
		if sim >= e.threshold {
			matches = append(matches, domain.Match{
				EntryID:       entry.ID,
				SourceLocator: entry.SourceLocator,
				Similarity:    sim,
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].EntryID < matches[j].EntryID
	})

	logger.With(logger.Fields{logger.FieldCount: len(matches)}).
		WithDuration(time.Since(start).Milliseconds()).
		Debug(ctx, "Scanned %d %s entries", len(entries), kind)
	return matches, nil
}

// AggregateScore reduces a match list to the run's overall score: the best
// individual similarity, or 0 when nothing matched.
// Parameters:
//   - matches: match list as returned by FindMatches.
// Returns:
//   - float64: highest similarity, or 0 for an empty list.
func AggregateScore(matches []domain.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	best := matches[0].Similarity
	for _, m := range matches[1:] {
		if m.Similarity > best {
			best = m.Similarity
		}
	}
	return best
}
