package audit

import "time"

// EntryKind classifies what produced the trail entry.
type EntryKind string

const (
	// KindTransition records an audit or operation state change.
	KindTransition EntryKind = "TRANSITION"
	// KindProbe records a connectivity test against the provider's upstream.
	KindProbe EntryKind = "PROBE"
)

type Entry struct {
	ID         string    `json:"id"`
	TraceID    string    `json:"trace_id"`
	ProviderID string    `json:"provider_id"`
	Kind       EntryKind `json:"kind"`

	// Actor is the console user who triggered the action; empty for
	// system-initiated entries (probe results).
	Actor  string `json:"actor"`
	Action string `json:"action"`

	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Remark     string `json:"remark,omitempty"`

	Status     string    `json:"status"` // SUCCESS, FAILED
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
