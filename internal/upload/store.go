// Package upload tracks chunked upload sessions. Chunk payloads are written
// to a per-video directory on disk; session bookkeeping lives in memory with
// single-writer-per-key locking so operations on different videos proceed in
// parallel.
package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/marinewatch/marine/internal/domain"
)

// Store owns all upload sessions, keyed by video ID.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	root     string
}

type session struct {
	mu       sync.Mutex
	total    int
	received map[int]struct{}
	state    domain.SessionState
	lastErr  string
}

// NewStore creates a chunk store rooted at dir, creating it if needed.
// Parameters:
//   - dir: directory under which per-video chunk directories are created.
// Returns:
//   - *Store: initialized store.
//   - error: non-nil if the root directory cannot be created.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chunk root: %w", err)
	}
	return &Store{
		sessions: make(map[string]*session),
		root:     dir,
	}, nil
}

// get returns the session for videoID, creating it when create is set.
func (s *Store) get(videoID string, create bool) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[videoID]
	if !ok && create {
		sess = &session{
			received: make(map[int]struct{}),
			state:    domain.SessionCollecting,
		}
		s.sessions[videoID] = sess
	}
	return sess
}

// AcceptChunk records one chunk for videoID. Re-submitting the same index
// overwrites the prior payload without changing the received cardinality.
// The returned bool is true exactly once per session: for the chunk that
// completes the set while the session is still collecting. That caller is
// the one that schedules background processing.
//
// Parameters:
//   - videoID: upload session key.
//   - index: 0-based chunk index.
//   - total: total chunk count; must match any previously recorded value.
//   - payload: chunk bytes.
// Returns:
//   - bool: true if this chunk completed the session.
//   - error: ValidationError on inconsistent input, otherwise I/O errors.
func (s *Store) AcceptChunk(videoID string, index, total int, payload []byte) (bool, error) {
	if videoID == "" {
		return false, domain.NewValidationError("video_id must not be empty")
	}
	if total < 1 {
		return false, domain.NewValidationError("total_chunks must be at least 1, got %d", total)
	}
	if index < 0 || index >= total {
		return false, domain.NewValidationError("chunk_index %d out of range [0,%d)", index, total)
	}

	sess := s.get(videoID, true)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.total == 0 {
		sess.total = total
	} else if sess.total != total {
		return false, domain.NewValidationError("total_chunks %d conflicts with recorded total %d for video %s",
			total, sess.total, videoID)
	}

	dir := filepath.Join(s.root, videoID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create chunk dir: %w", err)
	}
	if err := os.WriteFile(ChunkPath(dir, index), payload, 0o644); err != nil {
		return false, fmt.Errorf("failed to write chunk %d: %w", index, err)
	}

	sess.received[index] = struct{}{}

	if len(sess.received) == sess.total && sess.state == domain.SessionCollecting {
		sess.state = domain.SessionComplete
		return true, nil
	}
	return false, nil
}

// TryBeginProcessing performs the compare-and-set that guards the
// exactly-once background trigger: only one caller can move a completed
// session into SessionReassembling. Re-runs from SessionProcessed and
// SessionFailed are allowed (the explicit recovery path); a session already
// reassembling yields ErrConcurrencyConflict.
//
// Parameters:
//   - videoID: upload session key.
//   - total: expected total chunk count; 0 skips the consistency check.
// Returns:
//   - error: NotFoundError, ValidationError, ErrConcurrencyConflict, or nil
//     when the caller won the transition.
func (s *Store) TryBeginProcessing(videoID string, total int) error {
	sess := s.get(videoID, false)
	if sess == nil {
		return domain.NewNotFoundError("upload session", videoID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if total > 0 && sess.total != total {
		return domain.NewValidationError("total_chunks %d conflicts with recorded total %d for video %s",
			total, sess.total, videoID)
	}
	if len(sess.received) != sess.total {
		return domain.NewValidationError("session %s incomplete: %d of %d chunks received",
			videoID, len(sess.received), sess.total)
	}

	switch sess.state {
	case domain.SessionReassembling:
		return domain.ErrConcurrencyConflict
	case domain.SessionComplete, domain.SessionProcessed, domain.SessionFailed:
		sess.state = domain.SessionReassembling
		sess.lastErr = ""
		return nil
	default:
		// Collecting with a full chunk set means AcceptChunk has not run its
		// completeness transition; treat like complete.
		sess.state = domain.SessionReassembling
		sess.lastErr = ""
		return nil
	}
}

// MarkProcessed transitions the session to its terminal success state.
func (s *Store) MarkProcessed(videoID string) {
	if sess := s.get(videoID, false); sess != nil {
		sess.mu.Lock()
		sess.state = domain.SessionProcessed
		sess.mu.Unlock()
	}
}

// MarkFailed transitions the session to SessionFailed and records the cause.
// Failed sessions are not retried automatically; TryBeginProcessing is the
// only recovery path.
func (s *Store) MarkFailed(videoID string, cause error) {
	if sess := s.get(videoID, false); sess != nil {
		sess.mu.Lock()
		sess.state = domain.SessionFailed
		if cause != nil {
			sess.lastErr = cause.Error()
		}
		sess.mu.Unlock()
	}
}

// Status returns a snapshot of the session.
// Parameters:
//   - videoID: upload session key.
// Returns:
//   - *domain.SessionStatus: current state snapshot.
//   - error: NotFoundError if no session exists.
func (s *Store) Status(videoID string) (*domain.SessionStatus, error) {
	sess := s.get(videoID, false)
	if sess == nil {
		return nil, domain.NewNotFoundError("upload session", videoID)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return &domain.SessionStatus{
		VideoID:     videoID,
		TotalChunks: sess.total,
		Received:    len(sess.received),
		State:       sess.state,
		LastError:   sess.lastErr,
	}, nil
}

// ChunkDir returns the directory holding videoID's chunk files.
func (s *Store) ChunkDir(videoID string) string {
	return filepath.Join(s.root, videoID)
}

// ChunkPath returns the path of one chunk file inside dir.
func ChunkPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("chunk_%d.mp4", index))
}
