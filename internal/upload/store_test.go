package upload

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/marinewatch/marine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	return store
}

// TestAcceptChunkLifecycle verifies the basic collect-then-complete flow and
// that chunk payloads land in the expected files.
func TestAcceptChunkLifecycle(t *testing.T) {
	store := newTestStore(t)

	complete, err := store.AcceptChunk("vid-1", 0, 3, []byte("aaa"))
	if err != nil {
		t.Fatalf("AcceptChunk returned error: %v", err)
	}
	if complete {
		t.Error("first of three chunks reported completion")
	}

	if _, err := store.AcceptChunk("vid-1", 2, 3, []byte("ccc")); err != nil {
		t.Fatalf("AcceptChunk returned error: %v", err)
	}

	status, err := store.Status("vid-1")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.Received != 2 || status.State != domain.SessionCollecting {
		t.Errorf("unexpected status: %+v", status)
	}

	complete, err = store.AcceptChunk("vid-1", 1, 3, []byte("bbb"))
	if err != nil {
		t.Fatalf("AcceptChunk returned error: %v", err)
	}
	if !complete {
		t.Error("final chunk did not report completion")
	}

	for i, want := range []string{"aaa", "bbb", "ccc"} {
		data, err := os.ReadFile(ChunkPath(store.ChunkDir("vid-1"), i))
		if err != nil {
			t.Fatalf("reading chunk %d: %v", i, err)
		}
		if string(data) != want {
			t.Errorf("chunk %d content: got %q, want %q", i, data, want)
		}
	}
}

// TestAcceptChunkIdempotent verifies that resubmitting an index overwrites
// the payload without double-counting, and that a resubmission after
// completion does not re-trigger.
func TestAcceptChunkIdempotent(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.AcceptChunk("vid-2", 0, 2, []byte("old")); err != nil {
		t.Fatalf("AcceptChunk returned error: %v", err)
	}
	complete, err := store.AcceptChunk("vid-2", 0, 2, []byte("new"))
	if err != nil {
		t.Fatalf("AcceptChunk returned error: %v", err)
	}
	if complete {
		t.Error("duplicate chunk reported completion with one index missing")
	}

	data, err := os.ReadFile(ChunkPath(store.ChunkDir("vid-2"), 0))
	if err != nil {
		t.Fatalf("reading chunk: %v", err)
	}
	if string(data) != "new" {
		t.Errorf("overwrite not applied: got %q", data)
	}

	if complete, _ = store.AcceptChunk("vid-2", 1, 2, []byte("b")); !complete {
		t.Fatal("final chunk did not report completion")
	}
	if complete, _ = store.AcceptChunk("vid-2", 1, 2, []byte("b")); complete {
		t.Error("resubmission after completion reported completion again")
	}
}

// TestAcceptChunkValidation verifies the input error cases.
func TestAcceptChunkValidation(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.AcceptChunk("vid-3", 0, 4, []byte("a")); err != nil {
		t.Fatalf("AcceptChunk returned error: %v", err)
	}

	testCases := []struct {
		name    string
		videoID string
		index   int
		total   int
	}{
		{name: "empty video id", videoID: "", index: 0, total: 1},
		{name: "zero total", videoID: "vid-x", index: 0, total: 0},
		{name: "negative index", videoID: "vid-x", index: -1, total: 2},
		{name: "index beyond total", videoID: "vid-x", index: 2, total: 2},
		{name: "total mismatch", videoID: "vid-3", index: 1, total: 5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.AcceptChunk(tc.videoID, tc.index, tc.total, []byte("x")); !domain.IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

// TestCompletionTriggersExactlyOnce races many submitters of the full chunk
// set for one video and asserts that exactly one observes the completion
// signal.
func TestCompletionTriggersExactlyOnce(t *testing.T) {
	store := newTestStore(t)

	const total = 8
	const submitters = 16

	var completions int64
	var wg sync.WaitGroup
	for s := 0; s < submitters; s++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < total; i++ {
				idx := (i + seed) % total
				complete, err := store.AcceptChunk("vid-race", idx, total, []byte{byte(idx)})
				if err != nil {
					t.Errorf("AcceptChunk returned error: %v", err)
					return
				}
				if complete {
					atomic.AddInt64(&completions, 1)
				}
			}
		}(s)
	}
	wg.Wait()

	if completions != 1 {
		t.Fatalf("completion signalled %d times, want exactly 1", completions)
	}
}

// TestTryBeginProcessing verifies the compare-and-set transitions.
func TestTryBeginProcessing(t *testing.T) {
	store := newTestStore(t)

	if err := store.TryBeginProcessing("missing", 0); !domain.IsNotFound(err) {
		t.Errorf("expected NotFoundError for unknown session, got %v", err)
	}

	if _, err := store.AcceptChunk("vid-4", 0, 2, []byte("a")); err != nil {
		t.Fatalf("AcceptChunk returned error: %v", err)
	}
	if err := store.TryBeginProcessing("vid-4", 2); !domain.IsValidation(err) {
		t.Errorf("expected ValidationError for incomplete session, got %v", err)
	}

	if _, err := store.AcceptChunk("vid-4", 1, 2, []byte("b")); err != nil {
		t.Fatalf("AcceptChunk returned error: %v", err)
	}

	if err := store.TryBeginProcessing("vid-4", 5); !domain.IsValidation(err) {
		t.Errorf("expected ValidationError for total mismatch, got %v", err)
	}

	if err := store.TryBeginProcessing("vid-4", 2); err != nil {
		t.Fatalf("TryBeginProcessing returned error: %v", err)
	}
	if err := store.TryBeginProcessing("vid-4", 2); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("expected ErrConcurrencyConflict while reassembling, got %v", err)
	}

	store.MarkFailed("vid-4", fmt.Errorf("codec exploded"))
	status, err := store.Status("vid-4")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.State != domain.SessionFailed || status.LastError == "" {
		t.Errorf("unexpected status after failure: %+v", status)
	}

	// Failed sessions may be re-triggered.
	if err := store.TryBeginProcessing("vid-4", 0); err != nil {
		t.Fatalf("re-trigger after failure returned error: %v", err)
	}
	store.MarkProcessed("vid-4")

	// So may processed ones (idempotent re-run).
	if err := store.TryBeginProcessing("vid-4", 0); err != nil {
		t.Fatalf("re-trigger after success returned error: %v", err)
	}
}

// TestTryBeginProcessingRace races many callers on one completed session and
// asserts exactly one wins while the rest see the benign conflict.
func TestTryBeginProcessingRace(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.AcceptChunk("vid-5", 0, 1, []byte("a")); err != nil {
		t.Fatalf("AcceptChunk returned error: %v", err)
	}

	var wins, conflicts int64
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := store.TryBeginProcessing("vid-5", 1); {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case errors.Is(err, domain.ErrConcurrencyConflict):
				atomic.AddInt64(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("%d callers won the transition, want exactly 1", wins)
	}
	if conflicts != 11 {
		t.Fatalf("%d callers saw a conflict, want 11", conflicts)
	}
}
