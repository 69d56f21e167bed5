// internal/common/notify/notifier.go
package notify

import (
	"context"
)

// Event is the payload handed to the notification boundary. Delivery itself
// (templating, retries, provider fallbacks) happens outside this service; we
// only trigger it.
type Event struct {
	Type        string `json:"type"` // offer, nudge, timeout, unallocated, qc_verdict
	CaseID      string `json:"caseId"`
	CandidateID string `json:"candidateId,omitempty"`
	Wave        int    `json:"wave,omitempty"`
	Message     string `json:"message"`
}

// Notifier triggers a notification for an allocation or QC event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NoopNotifier discards events; used in tests and preview paths.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, event Event) error { return nil }

// RecordingNotifier captures events in order; used in tests to assert the
// exactly-one-nudge-per-wave rule.
type RecordingNotifier struct {
	Events []Event
}

func (r *RecordingNotifier) Notify(ctx context.Context, event Event) error {
	r.Events = append(r.Events, event)
	return nil
}
