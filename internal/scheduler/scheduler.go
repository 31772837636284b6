// Package scheduler contains the polling scheduler that claims due email
// jobs under a lease and runs them through the dispatcher, plus the
// compilation entry point that turns a stored campaign graph into durable
// jobs.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emailcraft/drip/internal/jobstore"
	"github.com/emailcraft/drip/pkg/api"
	"github.com/emailcraft/drip/pkg/worker"
)

// Options configures a Scheduler. Zero values fall back to the defaults
// noted on each field.
type Options struct {
	// PollInterval is how often the scheduler scans for due jobs.
	// Default 30s.
	PollInterval time.Duration

	// MaxConcurrent caps how many jobs may execute at once across the
	// whole process. Default 10.
	MaxConcurrent int

	// MaxSendConcurrent caps concurrent executions of the email-send job
	// type specifically. Default MaxConcurrent.
	MaxSendConcurrent int

	// LeaseTTL bounds how long a claimed job stays locked without
	// completing before another instance may reclaim it. Default 2m.
	LeaseTTL time.Duration

	// ShutdownGrace bounds how long Stop waits for in-flight jobs.
	// Default 30s. Jobs still running after the grace period are
	// abandoned; their lease expires and they are reclaimed later.
	ShutdownGrace time.Duration

	// Retry is applied by the dispatcher to transport failures.
	// The zero value means one attempt, failures terminal.
	Retry api.RetryPolicy

	// Observer receives compile and job lifecycle events. Nil means no
	// observation.
	Observer api.Observer

	// Owner identifies this scheduler instance in job leases. Default is
	// a random UUID per constructed Scheduler.
	Owner string
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 10
	}
	if o.MaxSendConcurrent <= 0 {
		o.MaxSendConcurrent = o.MaxConcurrent
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = 2 * time.Minute
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 30 * time.Second
	}
	if o.Observer == nil {
		o.Observer = api.NoopObserver{}
	}
	if o.Owner == "" {
		o.Owner = uuid.NewString()
	}
	return o
}

// Scheduler owns the poll/claim/execute loop. It is constructed once at
// process start and carries an explicit Start/Stop lifecycle; there is no
// lazily initialized process-wide instance.
type Scheduler struct {
	store      jobstore.Store
	graphs     api.GraphStore
	dispatcher *worker.Dispatcher
	opts       Options

	// slots and sendSlots are counting semaphores for the global and
	// per-job-type concurrency caps.
	slots     chan struct{}
	sendSlots chan struct{}

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	inflight sync.WaitGroup

	// dispatchCtx outlives the poll-loop context so in-flight sends can
	// finish during a graceful Stop. It is cancelled only after the grace
	// period expires.
	dispatchCtx    context.Context
	dispatchCancel context.CancelFunc
}

// New creates a Scheduler over the given stores and mail transport.
func New(store jobstore.Store, graphs api.GraphStore, transport api.Transport, opts Options) *Scheduler {
	opts = opts.withDefaults()
	return &Scheduler{
		store:      store,
		graphs:     graphs,
		dispatcher: worker.NewWithOptions(store, transport, opts.Retry, opts.Observer),
		opts:       opts,
		slots:      make(chan struct{}, opts.MaxConcurrent),
		sendSlots:  make(chan struct{}, opts.MaxSendConcurrent),
	}
}

// Start launches the poll loop. It returns an error if the scheduler is
// already running. The loop stops when Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.loopDone = make(chan struct{})

	// Dispatch runs on its own context: cancelling the claim loop must not
	// fail a send that is already in flight.
	s.dispatchCtx, s.dispatchCancel = context.WithCancel(context.WithoutCancel(ctx))

	go s.runLoop(loopCtx)
	return nil
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	// Poll immediately on startup so jobs left over from a previous run
	// (including expired leases) are picked up without waiting a full
	// interval.
	s.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

// pollOnce claims as many due jobs as current capacity allows and launches
// one goroutine per claimed job. Execution never blocks claiming: the
// capacity reservation happens before the claim, and each job runs on its
// own goroutine.
func (s *Scheduler) pollOnce(ctx context.Context) {
	reserved := s.reserve()
	if reserved == 0 {
		return
	}

	claimed, err := s.store.ClaimDue(ctx, time.Now(), reserved, s.opts.Owner, s.opts.LeaseTTL)
	if err != nil {
		s.release(reserved)
		return
	}
	// Return the tokens we reserved but did not use.
	s.release(reserved - len(claimed))

	for _, c := range claimed {
		s.opts.Observer.OnJobClaimed(ctx, c.Job, c.Reclaimed)

		job := c.Job
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			defer s.release(1)
			// The dispatcher records the outcome; the returned error is
			// already reflected in job state and observer events.
			_ = s.dispatcher.Dispatch(s.dispatchCtx, job, s.opts.Owner)
		}()
	}
}

// reserve takes matching tokens from both semaphores without blocking and
// returns how many claims they cover.
func (s *Scheduler) reserve() int {
	n := 0
	for {
		select {
		case s.slots <- struct{}{}:
		default:
			return n
		}
		select {
		case s.sendSlots <- struct{}{}:
			n++
		default:
			<-s.slots
			return n
		}
	}
}

func (s *Scheduler) release(n int) {
	for i := 0; i < n; i++ {
		<-s.slots
		<-s.sendSlots
	}
}

// Stop stops claiming new jobs, waits up to ShutdownGrace for in-flight
// jobs, then returns. Abandoned jobs keep their lease until it expires and
// are reclaimed on a later poll, possibly by another instance.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	loopDone := s.loopDone
	dispatchCancel := s.dispatchCancel
	s.mu.Unlock()

	cancel()
	<-loopDone

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.opts.ShutdownGrace):
	}

	// Abandon whatever is still running. The jobs stay Locked; their lease
	// expires and a later poll reclaims them.
	dispatchCancel()
}

// Query returns the reporting view of jobs matching the filter.
func (s *Scheduler) Query(ctx context.Context, f jobstore.Filter) ([]api.JobView, error) {
	jobs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	views := make([]api.JobView, len(jobs))
	for i, j := range jobs {
		views[i] = j.View()
	}
	return views, nil
}

// Records returns the audit records written when a graph was compiled.
func (s *Scheduler) Records(ctx context.Context, graphID string) ([]*api.ScheduleRecord, error) {
	return s.store.ListRecords(ctx, graphID)
}
