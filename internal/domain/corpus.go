package domain

import "time"

// EntryKind distinguishes the two logical corpus populations.
// Values are EntryKindUploaded (rights-holder references) and
// EntryKindCrawled (content found in the wild).
type EntryKind string

const (
	EntryKindUploaded EntryKind = "uploaded"
	EntryKindCrawled  EntryKind = "crawled"
)

// CorpusEntry represents one fingerprinted video in the corpus.
// An entry is keyed logically by (kind, source_locator); reprocessing the
// same video updates the entry in place and never duplicates it.
type CorpusEntry struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	Kind          EntryKind `gorm:"type:text;not null;index:idx_corpus_kind_locator,unique" json:"kind"`
	SourceLocator string    `gorm:"type:text;not null;index:idx_corpus_kind_locator,unique" json:"source_locator"`
	UserEmail     string    `gorm:"type:text;index:idx_corpus_user" json:"user_email,omitempty"`
	Title         string    `gorm:"type:text" json:"title,omitempty"`
	Description   string    `gorm:"type:text" json:"description,omitempty"`
	Width         int       `json:"width,omitempty"`
	Height        int       `json:"height,omitempty"`
	HashVector    Vector    `gorm:"type:text" json:"hash_vector"`
	AudioSpectrum Vector    `gorm:"type:text" json:"audio_spectrum,omitempty"`
	Flagged       bool      `gorm:"default:false;index:idx_corpus_flagged" json:"flagged"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for CorpusEntry.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (CorpusEntry) TableName() string {
	return "corpus_entries"
}

// Match is a single above-threshold similarity hit against the corpus.
type Match struct {
	EntryID       string  `json:"entry_id"`
	SourceLocator string  `json:"source_locator"`
	Similarity    float64 `json:"similarity"`
}

// AnalysisRunResult is the outcome of one full matching run.
type AnalysisRunResult struct {
	VideoID    string  `json:"video_id"`
	EntryID    string  `json:"entry_id"`
	Flagged    bool    `json:"flagged"`
	MatchScore float64 `json:"match_score"`
	Matches    []Match `json:"matches"`
}
