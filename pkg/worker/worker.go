package worker

import (
	"context"
	"time"

	"github.com/emailcraft/drip/internal/jobstore"
	"github.com/emailcraft/drip/pkg/api"
)

// Store is the subset of the job store the dispatcher needs to record
// outcomes.
type Store interface {
	MarkCompleted(ctx context.Context, id, owner string, at time.Time) error
	MarkFailed(ctx context.Context, id, owner string, at time.Time, reason string) error
}

// Ensure the real store satisfies the dispatcher's view of it.
var _ Store = (jobstore.Store)(nil)

// Dispatcher executes claimed jobs: it invokes the mail transport and maps
// the result to a Completed or Failed status write. Errors are always
// recorded on the job, never swallowed.
type Dispatcher struct {
	store     Store
	transport api.Transport
	observer  api.Observer
	retry     api.RetryPolicy
}

// New creates a Dispatcher with the default single-attempt retry policy.
func New(store Store, transport api.Transport) *Dispatcher {
	return NewWithOptions(store, transport, api.RetryPolicy{}, nil)
}

// NewWithOptions creates a Dispatcher with an explicit retry policy and
// observer. A nil observer defaults to api.NoopObserver.
func NewWithOptions(store Store, transport api.Transport, retry api.RetryPolicy, obs api.Observer) *Dispatcher {
	if obs == nil {
		obs = api.NoopObserver{}
	}
	return &Dispatcher{
		store:     store,
		transport: transport,
		observer:  obs,
		retry:     retry,
	}
}

// Dispatch sends one locked job's email and records the outcome under the
// given lease owner. The returned error is the final transport error, if
// any; the status write happens regardless, so callers only use the return
// value for reporting.
func (d *Dispatcher) Dispatch(ctx context.Context, job *api.Job, owner string) error {
	start := time.Now()

	var sendErr error
	attempts := d.retry.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, d.retry.BackoffFor(attempt-1)); err != nil {
				break
			}
		}
		sendErr = d.transport.Send(ctx, job.Recipient, job.Subject, job.Body)
		if sendErr == nil {
			break
		}
	}

	now := time.Now()

	// Status writes must not be lost to a context that was cancelled while
	// the send was in flight; a completed send that is never recorded would
	// be delivered again after the lease expires.
	recordCtx := context.WithoutCancel(ctx)

	if sendErr != nil {
		if ctx.Err() != nil {
			// The dispatch context was cancelled: this is an abandonment
			// (shutdown), not a delivery verdict. Leave the job Locked so
			// the lease expires and a later poll reclaims it.
			return sendErr
		}
		if err := d.store.MarkFailed(recordCtx, job.ID, owner, now, sendErr.Error()); err != nil {
			return err
		}
		d.observer.OnJobFailed(ctx, job, sendErr)
		return sendErr
	}

	if err := d.store.MarkCompleted(recordCtx, job.ID, owner, now); err != nil {
		return err
	}
	d.observer.OnJobCompleted(ctx, job, time.Since(start))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
