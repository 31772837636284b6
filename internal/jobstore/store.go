// Package jobstore provides durable storage of scheduled email jobs and
// their audit records, with an atomic lease-based claim operation used by
// the scheduler to guarantee at-least-once execution.
package jobstore

import (
	"context"
	"time"

	"github.com/emailcraft/drip/pkg/api"
)

// Filter selects jobs from the store. Zero values mean "no filter" for
// that field.
type Filter struct {
	Status api.JobStatus

	// DueBefore keeps only jobs whose due time is at or before the given
	// instant.
	DueBefore time.Time
}

// Claimed is one job the store transitioned to Locked on behalf of a
// claimer. Reclaimed is true when the job was taken over from an expired
// lease rather than from Pending.
type Claimed struct {
	Job       *api.Job
	Reclaimed bool
}

// Store is the durable job store. All job mutation is serialized per-job
// through these operations; implementations must make ClaimDue and the
// Mark* transitions atomic so two scheduler instances never execute the
// same job simultaneously.
type Store interface {
	// Submit persists a new job in Pending state.
	Submit(ctx context.Context, job *api.Job) error

	// Get returns a job by id, or api.ErrJobNotFound.
	Get(ctx context.Context, id string) (*api.Job, error)

	// List returns jobs matching the filter.
	List(ctx context.Context, f Filter) ([]*api.Job, error)

	// ClaimDue atomically transitions at most limit due jobs to Locked,
	// recording owner and a lease expiring after ttl. A job is due when it
	// is Pending with dueAt <= now, or Locked with an expired lease (the
	// crash-recovery path). Concurrent claimers racing for one job see
	// exactly one winner.
	ClaimDue(ctx context.Context, now time.Time, limit int, owner string, ttl time.Duration) ([]Claimed, error)

	// MarkCompleted transitions a Locked job held by owner to Completed and
	// records the run time. Returns api.ErrJobLocked if owner does not hold
	// the lease.
	MarkCompleted(ctx context.Context, id, owner string, at time.Time) error

	// MarkFailed transitions a Locked job held by owner to Failed with the
	// given reason. Failed jobs are terminal; they are never reclaimed.
	MarkFailed(ctx context.Context, id, owner string, at time.Time, reason string) error

	// SaveRecord writes one compile-time audit record.
	SaveRecord(ctx context.Context, rec *api.ScheduleRecord) error

	// ListRecords returns the audit records written for a graph.
	ListRecords(ctx context.Context, graphID string) ([]*api.ScheduleRecord, error)

	// Close releases underlying resources.
	Close() error
}
