package domain

import "time"

// AnalysisType tags the three shapes an analysis record can take.
type AnalysisType string

const (
	AnalysisTypeUploaded   AnalysisType = "uploaded"
	AnalysisTypeCrawled    AnalysisType = "crawled"
	AnalysisTypeComparison AnalysisType = "comparison"
)

// AnalysisRecord is the persisted representation of one analysis outcome.
// Exactly one reference combination is valid per type: uploaded records set
// only UploadedVideoID, crawled records set only CrawledVideoID, comparison
// records set both. Rows are only ever built through the AnalysisVariant
// types below, which make the invalid combinations unconstructible.
type AnalysisRecord struct {
	ID              string       `gorm:"type:text;primaryKey" json:"id"`
	AnalysisType    AnalysisType `gorm:"type:text;not null;index:idx_analysis_type" json:"analysis_type"`
	UploadedVideoID *string      `gorm:"type:text;index:idx_analysis_uploaded" json:"uploaded_video_id,omitempty"`
	CrawledVideoID  *string      `gorm:"type:text;index:idx_analysis_crawled" json:"crawled_video_id,omitempty"`
	ResultVector    Vector       `gorm:"type:text" json:"result_vector"`
	ResultPayload   JSONMap      `gorm:"type:text" json:"result_payload"`
	MatchScore      float64      `json:"match_score"`
	Flagged         bool         `gorm:"default:false;index:idx_analysis_flagged" json:"flagged"`
	AnalyzedAt      time.Time    `json:"analyzed_at"`
}

// TableName returns the database table name for AnalysisRecord.
func (AnalysisRecord) TableName() string {
	return "analysis_records"
}

// AnalysisVariant is the sealed union of the three analysis shapes. Each
// variant knows how to produce its persistence row with the correct
// reference combination.
type AnalysisVariant interface {
	// Record builds the persistence row for this variant. The returned
	// record has no ID or timestamp; the repository assigns those.
	Record() *AnalysisRecord

	isAnalysisVariant()
}

// UploadedAnalysis is the primary record for a run whose owning entry is a
// rights-holder upload.
type UploadedAnalysis struct {
	EntryID     string
	QueryVector Vector
	Payload     JSONMap
	Score       float64
	Flagged     bool
}

func (a UploadedAnalysis) Record() *AnalysisRecord {
	id := a.EntryID
	return &AnalysisRecord{
		AnalysisType:    AnalysisTypeUploaded,
		UploadedVideoID: &id,
		ResultVector:    a.QueryVector,
		ResultPayload:   a.Payload,
		MatchScore:      a.Score,
		Flagged:         a.Flagged,
	}
}

func (UploadedAnalysis) isAnalysisVariant() {}

// CrawledAnalysis is the primary record for a run whose owning entry was
// crawled or reassembled from chunks.
type CrawledAnalysis struct {
	EntryID     string
	QueryVector Vector
	Payload     JSONMap
	Score       float64
	Flagged     bool
}

func (a CrawledAnalysis) Record() *AnalysisRecord {
	id := a.EntryID
	return &AnalysisRecord{
		AnalysisType:   AnalysisTypeCrawled,
		CrawledVideoID: &id,
		ResultVector:   a.QueryVector,
		ResultPayload:  a.Payload,
		MatchScore:     a.Score,
		Flagged:        a.Flagged,
	}
}

func (CrawledAnalysis) isAnalysisVariant() {}

// ComparisonAnalysis cross-references one uploaded entry and one crawled
// entry for a single individual match.
type ComparisonAnalysis struct {
	UploadedID  string
	CrawledID   string
	QueryVector Vector
	Payload     JSONMap
	Score       float64
	Flagged     bool
}

func (a ComparisonAnalysis) Record() *AnalysisRecord {
	up := a.UploadedID
	cr := a.CrawledID
	return &AnalysisRecord{
		AnalysisType:    AnalysisTypeComparison,
		UploadedVideoID: &up,
		CrawledVideoID:  &cr,
		ResultVector:    a.QueryVector,
		ResultPayload:   a.Payload,
		MatchScore:      a.Score,
		Flagged:         a.Flagged,
	}
}

func (ComparisonAnalysis) isAnalysisVariant() {}
