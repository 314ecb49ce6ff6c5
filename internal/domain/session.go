package domain

// SessionState is the state of a chunked upload session.
// Values include SessionCollecting, SessionComplete, SessionReassembling,
// SessionProcessed, and SessionFailed.
type SessionState string

const (
	SessionCollecting   SessionState = "collecting"
	SessionComplete     SessionState = "complete"
	SessionReassembling SessionState = "reassembling"
	SessionProcessed    SessionState = "processed"
	SessionFailed       SessionState = "failed"
)

// SessionStatus is a read-only snapshot of an upload session.
type SessionStatus struct {
	VideoID     string       `json:"video_id"`
	TotalChunks int          `json:"total_chunks"`
	Received    int          `json:"received"`
	State       SessionState `json:"state"`
	LastError   string       `json:"last_error,omitempty"`
}
