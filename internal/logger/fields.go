package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldVideoID is the video identifier being ingested or analyzed
	FieldVideoID = "video_id"

	// FieldAnalysisID is the identifier of one matching run
	FieldAnalysisID = "analysis_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldUserKey is the notification subscriber key (user email)
	FieldUserKey = "user_key"
)

// ============================================
// Standard Metric Fields (Entry level)
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
