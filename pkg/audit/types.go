package audit

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of an authorization decision
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeDeny  Outcome = "deny"
)

// Record is one authorization decision as seen by audit sinks. Reason is internal
// detail for operators; it is never sent to the denied caller.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   Outcome   `json:"decision"`
	UserID    string    `json:"user_id"`
	Service   string    `json:"service,omitempty"`
	Action    string    `json:"action"`
	ObjectRef string    `json:"object_ref,omitempty"`
	Policy    string    `json:"policy,omitempty"`
	Reason    string    `json:"reason"`
	RequestID string    `json:"request_id,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// NewRecord creates a record with a fresh ID
func NewRecord(ts time.Time, allowed bool) *Record {
	outcome := OutcomeDeny
	if allowed {
		outcome = OutcomeAllow
	}
	return &Record{
		ID:        uuid.NewString(),
		Timestamp: ts.UTC(),
		Outcome:   outcome,
	}
}

// Allowed reports whether the record is an allow
func (r *Record) Allowed() bool {
	return r.Outcome == OutcomeAllow
}
