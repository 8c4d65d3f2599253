// Package audit records backup, remediation and push runs.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Operation names
const (
	OpBackup    = "backup"
	OpRemediate = "remediate"
	OpPush      = "push"
)

// Event represents one audited run against a device
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	User      string        `json:"user"`
	Device    string        `json:"device"`
	Platform  string        `json:"platform,omitempty"`
	Operation string        `json:"operation"`
	Features  []string      `json:"features,omitempty"`
	Skipped   []string      `json:"skipped,omitempty"`
	Failed    []string      `json:"failed,omitempty"`
	Artifact  string        `json:"artifact,omitempty"`
	Changed   bool          `json:"changed"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Filter defines criteria for querying audit events
type Filter struct {
	Device      string
	User        string
	Operation   string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, device, operation string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Operation: operation,
	}
}

// WithPlatform sets the network driver name
func (e *Event) WithPlatform(platform string) *Event {
	e.Platform = platform
	return e
}

// WithFeatures sets the features that produced output
func (e *Event) WithFeatures(features []string) *Event {
	e.Features = features
	return e
}

// WithSkipped sets the features that were skipped
func (e *Event) WithSkipped(skipped []string) *Event {
	e.Skipped = skipped
	return e
}

// WithFailed sets the features whose push failed
func (e *Event) WithFailed(failed []string) *Event {
	e.Failed = failed
	return e
}

// WithArtifact sets the path the artifact was written to
func (e *Event) WithArtifact(path string) *Event {
	e.Artifact = path
	return e
}

// WithChanged marks whether the run changed the device
func (e *Event) WithChanged(changed bool) *Event {
	e.Changed = changed
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the run duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}
