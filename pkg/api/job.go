package api

import (
	"strings"
	"time"
	"unicode/utf8"
)

// JobStatus is the lifecycle state of a scheduled email job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusLocked    JobStatus = "locked"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job is one durable send-this-email unit of work. Jobs are created by the
// schedule compiler and mutated only through the job store's atomic
// operations.
type Job struct {
	ID        string
	Recipient string
	Subject   string
	Body      string

	// DueAt is the absolute time the job becomes eligible for claiming.
	DueAt  time.Time
	Status JobStatus

	CreatedAt time.Time
	LastRunAt time.Time

	// FailureReason is set when the job transitions to StatusFailed.
	FailureReason string

	// Lease fields are managed by the store. A locked job whose lease has
	// expired is claimable again; that is the at-least-once mechanism.
	LeaseOwner     string
	LeaseExpiresAt time.Time
}

// DerivedStatus computes the status label exposed on the query surface:
// a failure reason wins over a completion time, which wins over pending.
func (j *Job) DerivedStatus() JobStatus {
	switch {
	case j.FailureReason != "":
		return StatusFailed
	case j.Status == StatusCompleted || (!j.LastRunAt.IsZero() && j.Status != StatusLocked):
		return StatusCompleted
	case j.Status == StatusLocked:
		return StatusLocked
	default:
		return StatusPending
	}
}

// JobView is the read model returned by the status query surface.
type JobView struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Summary   string    `json:"summary"`
	DueAt     time.Time `json:"dueAt"`
	LastRunAt time.Time `json:"lastRunAt,omitempty"`
	Status    JobStatus `json:"status"`
}

// View renders the job for the reporting layer. The body is summarized,
// not exposed verbatim.
func (j *Job) View() JobView {
	summary := j.Subject
	if body := strings.TrimSpace(j.Body); body != "" {
		const max = 80
		if len(body) > max {
			// Back up to a rune boundary so the cut never splits a
			// multi-byte character.
			cut := max
			for cut > 0 && !utf8.RuneStart(body[cut]) {
				cut--
			}
			body = body[:cut] + "…"
		}
		summary = summary + " - " + body
	}
	return JobView{
		ID:        j.ID,
		Recipient: j.Recipient,
		Summary:   summary,
		DueAt:     j.DueAt,
		LastRunAt: j.LastRunAt,
		Status:    j.DerivedStatus(),
	}
}

// ScheduleRecord is the denormalized audit row written once per compiled
// schedule entry. It exists for observability; the job store remains
// authoritative for execution.
type ScheduleRecord struct {
	ID          string    `json:"id"`
	GraphID     string    `json:"graphId"`
	NodeID      string    `json:"nodeId"`
	Recipient   string    `json:"recipient"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Status      string    `json:"status"`
}

// RecordStatusScheduled is the status written on every record at compile
// time. Records are never updated afterwards.
const RecordStatusScheduled = "scheduled"

// CompileResult is returned by the compilation entry point.
type CompileResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Scheduled int    `json:"scheduled"`

	// Err carries the sentinel behind a failure (ErrGraphNotFound,
	// ErrInvalidGraph, ...) for programmatic callers; Message stays the
	// human-readable surface. Not serialized.
	Err error `json:"-"`
}
