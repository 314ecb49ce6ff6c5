package domain

import "testing"

// TestAnalysisVariantReferences verifies each variant produces the only
// valid reference combination for its type.
func TestAnalysisVariantReferences(t *testing.T) {
	vec := Vector{1, 0}

	testCases := []struct {
		name         string
		variant      AnalysisVariant
		wantType     AnalysisType
		wantUploaded string
		wantCrawled  string
	}{
		{
			name:         "uploaded sets only the uploaded reference",
			variant:      UploadedAnalysis{EntryID: "up-1", QueryVector: vec, Score: 91, Flagged: true},
			wantType:     AnalysisTypeUploaded,
			wantUploaded: "up-1",
		},
		{
			name:        "crawled sets only the crawled reference",
			variant:     CrawledAnalysis{EntryID: "cr-1", QueryVector: vec},
			wantType:    AnalysisTypeCrawled,
			wantCrawled: "cr-1",
		},
		{
			name:         "comparison sets both references",
			variant:      ComparisonAnalysis{UploadedID: "up-2", CrawledID: "cr-2", Score: 85, Flagged: true},
			wantType:     AnalysisTypeComparison,
			wantUploaded: "up-2",
			wantCrawled:  "cr-2",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record := tc.variant.Record()

			if record.AnalysisType != tc.wantType {
				t.Errorf("type: got %s, want %s", record.AnalysisType, tc.wantType)
			}

			if tc.wantUploaded == "" {
				if record.UploadedVideoID != nil {
					t.Errorf("uploaded ref set to %q, want nil", *record.UploadedVideoID)
				}
			} else if record.UploadedVideoID == nil || *record.UploadedVideoID != tc.wantUploaded {
				t.Errorf("uploaded ref: got %v, want %q", record.UploadedVideoID, tc.wantUploaded)
			}

			if tc.wantCrawled == "" {
				if record.CrawledVideoID != nil {
					t.Errorf("crawled ref set to %q, want nil", *record.CrawledVideoID)
				}
			} else if record.CrawledVideoID == nil || *record.CrawledVideoID != tc.wantCrawled {
				t.Errorf("crawled ref: got %v, want %q", record.CrawledVideoID, tc.wantCrawled)
			}

			// ID and timestamp belong to the repository.
			if record.ID != "" || !record.AnalyzedAt.IsZero() {
				t.Errorf("variant assigned persistence fields: id=%q analyzed_at=%v", record.ID, record.AnalyzedAt)
			}
		})
	}
}
