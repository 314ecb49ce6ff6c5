package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marinewatch/marine/internal/config"
	"github.com/marinewatch/marine/internal/domain"
	"github.com/marinewatch/marine/internal/fingerprint"
	"github.com/marinewatch/marine/internal/match"
	"github.com/marinewatch/marine/internal/media"
	"github.com/marinewatch/marine/internal/notify"
	"github.com/marinewatch/marine/internal/repository"
	"github.com/marinewatch/marine/internal/upload"
)

// axisHash produces a fingerprint whose first hex digit sets one bit, so
// different hashes yield orthogonal vectors.
const (
	axisHashA = "8000000000000000"
	axisHashB = "4000000000000000"
)

type fakeConcatenator struct{}

func (fakeConcatenator) Concat(ctx context.Context, listPath, outPath string) error {
	return os.WriteFile(outPath, []byte("assembled"), 0o644)
}

type fakeExtractor struct {
	hashes []string
	calls  int64
}

func (f *fakeExtractor) ExtractHashes(ctx context.Context, videoPath string) (*media.ExtractResult, error) {
	atomic.AddInt64(&f.calls, 1)
	return &media.ExtractResult{Hashes: f.hashes, Width: 1280, Height: 720}, nil
}

type capturingAlerts struct {
	mu    sync.Mutex
	calls []string
}

func (a *capturingAlerts) PiracyFound(ctx context.Context, videoID, locator string, score float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, fmt.Sprintf("%s:%s:%.0f", videoID, locator, score))
	return nil
}

func (a *capturingAlerts) Close() error { return nil }

// fakeArchive is an in-memory ObjectStorage.
type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{objects: make(map[string][]byte)}
}

func (a *fakeArchive) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = data
	return nil
}

func (a *fakeArchive) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (a *fakeArchive) GetURL(key string) string { return "https://archive.test/" + key }

func (a *fakeArchive) Exists(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.objects[key]
	return ok, nil
}

type testEnv struct {
	svc       *AnalysisService
	corpus    *repository.CorpusRepository
	analyses  *repository.AnalysisRepository
	hub       *notify.Hub
	alerts    *capturingAlerts
	extractor *fakeExtractor
	archive   *fakeArchive
}

func newTestEnv(t *testing.T, hashes []string) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:          "sqlite",
		Path:            filepath.Join(dir, "test.db"),
		AutoMigrate:     true,
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		t.Fatalf("InitDB returned error: %v", err)
	}

	chunks, err := upload.NewStore(filepath.Join(dir, "chunks"))
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}

	corpus := repository.NewCorpusRepository(db)
	analyses := repository.NewAnalysisRepository(db)
	hub := notify.NewHub(16)
	alerts := &capturingAlerts{}
	extractor := &fakeExtractor{hashes: hashes}
	archive := newFakeArchive()

	svc := NewAnalysisService(
		chunks,
		media.NewReassembler(fakeConcatenator{}),
		extractor,
		media.NoopAudioFingerprinter{},
		corpus,
		analyses,
		match.NewEngine(corpus, 80),
		hub,
		alerts,
		archive,
		Options{VisualDim: domain.VisualDim, AssembledDir: filepath.Join(dir, "assembled")},
	)

	return &testEnv{
		svc:       svc,
		corpus:    corpus,
		analyses:  analyses,
		hub:       hub,
		alerts:    alerts,
		extractor: extractor,
		archive:   archive,
	}
}

func (e *testEnv) seedEntry(t *testing.T, kind domain.EntryKind, locator, hash string) {
	t.Helper()
	vec, err := fingerprint.FromHashes([]string{hash}, domain.VisualDim)
	if err != nil {
		t.Fatalf("FromHashes returned error: %v", err)
	}
	now := time.Now().UTC()
	err = e.corpus.Upsert(context.Background(), &domain.CorpusEntry{
		ID:            "seed-" + locator,
		Kind:          kind,
		SourceLocator: locator,
		HashVector:    vec,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("seeding corpus entry: %v", err)
	}
}

func (e *testEnv) waitForState(t *testing.T, videoID string, want domain.SessionState) *domain.SessionStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := e.svc.Status(context.Background(), videoID)
		if err == nil && status.State == want {
			return status
		}
		if err == nil && status.State == domain.SessionFailed && want != domain.SessionFailed {
			t.Fatalf("session failed: %s", status.LastError)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s never reached state %s", videoID, want)
	return nil
}

// TestChunkedUploadFlagsPiratedContent walks the whole chunked path: chunks
// arrive, the final one triggers reassembly and matching against a seeded
// uploaded reference, and the outcome is recorded, notified, and alerted.
func TestChunkedUploadFlagsPiratedContent(t *testing.T) {
	env := newTestEnv(t, []string{axisHashA})
	env.seedEntry(t, domain.EntryKindUploaded, "original-movie", axisHashA)

	sub := env.hub.Subscribe("owner@example.com")
	defer env.hub.Unsubscribe(sub)

	meta := SubmissionMeta{UserEmail: "owner@example.com", Title: "suspect clip"}
	for i := 0; i < 3; i++ {
		if _, err := env.svc.SubmitChunk(context.Background(), SubmitChunkRequest{
			VideoID: "vid-pirate",
			Index:   i,
			Total:   3,
			Payload: []byte{byte(i)},
			Meta:    meta,
		}); err != nil {
			t.Fatalf("SubmitChunk %d returned error: %v", i, err)
		}
	}

	env.waitForState(t, "vid-pirate", domain.SessionProcessed)

	record, err := env.svc.LatestResult(context.Background(), "seed-original-movie")
	if err == nil && record.AnalysisType != domain.AnalysisTypeComparison {
		t.Errorf("expected a comparison record referencing the matched entry, got %s", record.AnalysisType)
	}

	entry, err := env.corpus.GetByKindAndLocator(context.Background(), domain.EntryKindCrawled, "vid-pirate")
	if err != nil {
		t.Fatalf("analyzed video missing from corpus: %v", err)
	}
	if !entry.Flagged {
		t.Error("analyzed entry not flagged despite exact corpus match")
	}
	if entry.Width != 1280 || entry.Height != 720 {
		t.Errorf("resolution not recorded: %dx%d", entry.Width, entry.Height)
	}

	primary, err := env.analyses.LatestForVideo(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("no analysis record for entry: %v", err)
	}
	if primary.MatchScore < 99.9 {
		t.Errorf("match score: got %v, want ~100", primary.MatchScore)
	}

	select {
	case e := <-sub.C:
		if e.Type != "piracy_found" || e.VideoID != "vid-pirate" {
			t.Errorf("unexpected event: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Error("no notification delivered to owner")
	}

	env.alerts.mu.Lock()
	alertCount := len(env.alerts.calls)
	env.alerts.mu.Unlock()
	if alertCount != 1 {
		t.Errorf("got %d alerts, want 1", alertCount)
	}
}

// TestChunkedUploadCleanContent verifies the no-match outcome: recorded,
// unflagged, no alerts.
func TestChunkedUploadCleanContent(t *testing.T) {
	env := newTestEnv(t, []string{axisHashA})
	env.seedEntry(t, domain.EntryKindUploaded, "original-movie", axisHashB)

	if _, err := env.svc.SubmitChunk(context.Background(), SubmitChunkRequest{
		VideoID: "vid-clean",
		Index:   0,
		Total:   1,
		Payload: []byte("x"),
	}); err != nil {
		t.Fatalf("SubmitChunk returned error: %v", err)
	}

	env.waitForState(t, "vid-clean", domain.SessionProcessed)

	entry, err := env.corpus.GetByKindAndLocator(context.Background(), domain.EntryKindCrawled, "vid-clean")
	if err != nil {
		t.Fatalf("analyzed video missing from corpus: %v", err)
	}
	if entry.Flagged {
		t.Error("clean entry flagged")
	}

	record, err := env.analyses.LatestForVideo(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("no analysis record: %v", err)
	}
	if record.Flagged || record.MatchScore != 0 {
		t.Errorf("unexpected record outcome: flagged=%v score=%v", record.Flagged, record.MatchScore)
	}

	env.alerts.mu.Lock()
	defer env.alerts.mu.Unlock()
	if len(env.alerts.calls) != 0 {
		t.Errorf("alerts published for clean content: %v", env.alerts.calls)
	}
}

// TestConcurrentFinalChunksRunOnce races duplicate submissions of the whole
// chunk set and asserts the pipeline executed exactly once.
func TestConcurrentFinalChunksRunOnce(t *testing.T) {
	env := newTestEnv(t, []string{axisHashA})

	const total = 4
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < total; i++ {
				idx := (i + seed) % total
				if _, err := env.svc.SubmitChunk(context.Background(), SubmitChunkRequest{
					VideoID: "vid-race",
					Index:   idx,
					Total:   total,
					Payload: []byte{byte(idx)},
				}); err != nil {
					t.Errorf("SubmitChunk returned error: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	env.waitForState(t, "vid-race", domain.SessionProcessed)

	if calls := atomic.LoadInt64(&env.extractor.calls); calls != 1 {
		t.Errorf("pipeline ran %d times, want exactly 1", calls)
	}
}

// TestTriggerAnalysisRerunKeepsIdentity verifies an explicit re-run works on
// the retained chunk files without any resubmission, appends a fresh record,
// and keeps the corpus entry identity.
func TestTriggerAnalysisRerunKeepsIdentity(t *testing.T) {
	env := newTestEnv(t, []string{axisHashA})

	if _, err := env.svc.SubmitChunk(context.Background(), SubmitChunkRequest{
		VideoID: "vid-rerun",
		Index:   0,
		Total:   1,
		Payload: []byte("x"),
	}); err != nil {
		t.Fatalf("SubmitChunk returned error: %v", err)
	}
	env.waitForState(t, "vid-rerun", domain.SessionProcessed)

	first, err := env.corpus.GetByKindAndLocator(context.Background(), domain.EntryKindCrawled, "vid-rerun")
	if err != nil {
		t.Fatalf("entry missing after first run: %v", err)
	}

	// The chunk files survive the first run, so the session reassembles
	// again as-is.
	result, err := env.svc.TriggerAnalysis(context.Background(), "vid-rerun", 1)
	if err != nil {
		t.Fatalf("TriggerAnalysis returned error: %v", err)
	}
	if result.EntryID != first.ID {
		t.Errorf("entry identity changed across runs: %s vs %s", result.EntryID, first.ID)
	}

	status, err := env.svc.Status(context.Background(), "vid-rerun")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.State != domain.SessionProcessed {
		t.Errorf("session state after re-run: got %s, want %s", status.State, domain.SessionProcessed)
	}

	second, err := env.corpus.GetByKindAndLocator(context.Background(), domain.EntryKindCrawled, "vid-rerun")
	if err != nil {
		t.Fatalf("entry missing after re-run: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("corpus entry duplicated: %s vs %s", second.ID, first.ID)
	}

	if calls := atomic.LoadInt64(&env.extractor.calls); calls != 2 {
		t.Errorf("pipeline ran %d times, want 2", calls)
	}
}

// TestTriggerAnalysisErrors verifies the error taxonomy on the trigger path.
func TestTriggerAnalysisErrors(t *testing.T) {
	env := newTestEnv(t, []string{axisHashA})

	if _, err := env.svc.TriggerAnalysis(context.Background(), "never-seen", 0); !domain.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	if _, err := env.svc.SubmitChunk(context.Background(), SubmitChunkRequest{
		VideoID: "vid-partial",
		Index:   0,
		Total:   2,
		Payload: []byte("x"),
	}); err != nil {
		t.Fatalf("SubmitChunk returned error: %v", err)
	}
	if _, err := env.svc.TriggerAnalysis(context.Background(), "vid-partial", 0); !domain.IsValidation(err) {
		t.Errorf("expected ValidationError for incomplete session, got %v", err)
	}

	if _, err := env.svc.SubmitChunk(context.Background(), SubmitChunkRequest{
		VideoID: "vid-mismatch",
		Index:   0,
		Total:   1,
		Payload: []byte("x"),
	}); err != nil {
		t.Fatalf("SubmitChunk returned error: %v", err)
	}
	env.waitForState(t, "vid-mismatch", domain.SessionProcessed)
	if _, err := env.svc.TriggerAnalysis(context.Background(), "vid-mismatch", 3); !domain.IsValidation(err) {
		t.Errorf("expected ValidationError for chunk count mismatch, got %v", err)
	}
}

// TestArtifactArchiveRoundTrip verifies a successful run archives the
// analyzed video and the archive serves it back by locator, with the report
// URL pointing at the same object.
func TestArtifactArchiveRoundTrip(t *testing.T) {
	env := newTestEnv(t, []string{axisHashA})

	result, err := env.svc.SubmitWholeVideo(context.Background(), SubmitWholeVideoRequest{
		Kind:    domain.EntryKindUploaded,
		Locator: "ref-archive",
		Payload: []byte("video-bytes"),
	})
	if err != nil {
		t.Fatalf("SubmitWholeVideo returned error: %v", err)
	}

	rc, err := env.svc.OpenArtifact(context.Background(), "ref-archive")
	if err != nil {
		t.Fatalf("OpenArtifact returned error: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if string(data) != "video-bytes" {
		t.Errorf("artifact content: got %q, want %q", data, "video-bytes")
	}

	record, err := env.analyses.LatestForVideo(context.Background(), result.EntryID)
	if err != nil {
		t.Fatalf("no analysis record: %v", err)
	}
	wantURL := "https://archive.test/artifacts/uploaded/" + result.EntryID + ".mp4"
	if got := env.svc.ArtifactURL(record); got != wantURL {
		t.Errorf("artifact URL: got %q, want %q", got, wantURL)
	}

	if _, err := env.svc.OpenArtifact(context.Background(), "never-archived"); !domain.IsNotFound(err) {
		t.Errorf("expected NotFoundError for unknown video, got %v", err)
	}
}

// TestSubmitWholeVideoScansCrawledCorpus verifies the reference-upload path:
// an uploaded submission is matched against crawled content and flags it.
func TestSubmitWholeVideoScansCrawledCorpus(t *testing.T) {
	env := newTestEnv(t, []string{axisHashA})
	env.seedEntry(t, domain.EntryKindCrawled, "http://pirate.example/clip", axisHashA)

	result, err := env.svc.SubmitWholeVideo(context.Background(), SubmitWholeVideoRequest{
		Kind:    domain.EntryKindUploaded,
		Locator: "ref-movie",
		Payload: []byte("video-bytes"),
		Meta:    SubmissionMeta{UserEmail: "studio@example.com", Title: "Reference"},
	})
	if err != nil {
		t.Fatalf("SubmitWholeVideo returned error: %v", err)
	}
	if !result.Flagged {
		t.Error("uploaded reference not flagged despite crawled match")
	}
	if len(result.Matches) != 1 || result.Matches[0].SourceLocator != "http://pirate.example/clip" {
		t.Errorf("unexpected matches: %+v", result.Matches)
	}

	record, err := env.analyses.LatestForVideo(context.Background(), result.EntryID)
	if err != nil {
		t.Fatalf("no analysis record: %v", err)
	}
	if record.AnalysisType != domain.AnalysisTypeComparison && record.AnalysisType != domain.AnalysisTypeUploaded {
		t.Errorf("unexpected record type: %s", record.AnalysisType)
	}
}

// TestSubmitWholeVideoValidation verifies bad submissions are rejected.
func TestSubmitWholeVideoValidation(t *testing.T) {
	env := newTestEnv(t, []string{axisHashA})

	testCases := []struct {
		name string
		req  SubmitWholeVideoRequest
	}{
		{name: "unknown kind", req: SubmitWholeVideoRequest{Kind: "weird", Locator: "x", Payload: []byte("v")}},
		{name: "empty locator", req: SubmitWholeVideoRequest{Kind: domain.EntryKindUploaded, Payload: []byte("v")}},
		{name: "empty payload", req: SubmitWholeVideoRequest{Kind: domain.EntryKindUploaded, Locator: "x"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.SubmitWholeVideo(context.Background(), tc.req); !domain.IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}
