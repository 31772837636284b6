package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the compiler and scheduler for logging
// and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay job execution.
type Observer interface {
	// OnCompile is called once per CompileAndSchedule call, after the graph
	// has been compiled. scheduled is the number of jobs submitted; err is
	// non-nil when compilation failed before any job was produced.
	OnCompile(ctx context.Context, graphID string, scheduled int, err error)

	// OnJobScheduled is called for each job accepted by the store.
	OnJobScheduled(ctx context.Context, job *Job)

	// OnJobClaimed is called when the scheduler locks a due job. reclaimed
	// is true when the job was taken over from an expired lease.
	OnJobClaimed(ctx context.Context, job *Job, reclaimed bool)

	// OnJobCompleted is called after a job's email was sent and the store
	// recorded completion.
	OnJobCompleted(ctx context.Context, job *Job, duration time.Duration)

	// OnJobFailed is called when the transport rejected the send and the
	// store recorded the failure.
	OnJobFailed(ctx context.Context, job *Job, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnCompile(ctx context.Context, graphID string, scheduled int, err error) {}
func (NoopObserver) OnJobScheduled(ctx context.Context, job *Job)                            {}
func (NoopObserver) OnJobClaimed(ctx context.Context, job *Job, reclaimed bool)              {}
func (NoopObserver) OnJobCompleted(ctx context.Context, job *Job, duration time.Duration)    {}
func (NoopObserver) OnJobFailed(ctx context.Context, job *Job, err error)                    {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnCompile(ctx context.Context, graphID string, scheduled int, err error) {
	for _, o := range c.observers {
		o.OnCompile(ctx, graphID, scheduled, err)
	}
}

func (c *CompositeObserver) OnJobScheduled(ctx context.Context, job *Job) {
	for _, o := range c.observers {
		o.OnJobScheduled(ctx, job)
	}
}

func (c *CompositeObserver) OnJobClaimed(ctx context.Context, job *Job, reclaimed bool) {
	for _, o := range c.observers {
		o.OnJobClaimed(ctx, job, reclaimed)
	}
}

func (c *CompositeObserver) OnJobCompleted(ctx context.Context, job *Job, d time.Duration) {
	for _, o := range c.observers {
		o.OnJobCompleted(ctx, job, d)
	}
}

func (c *CompositeObserver) OnJobFailed(ctx context.Context, job *Job, err error) {
	for _, o := range c.observers {
		o.OnJobFailed(ctx, job, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs compile / job lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnCompile(ctx context.Context, graphID string, scheduled int, err error) {
	if err != nil {
		o.Logger.ErrorContext(ctx, "compile_failed",
			slog.String("graph_id", graphID),
			slog.Any("error", err),
		)
		return
	}
	o.Logger.InfoContext(ctx, "compile_completed",
		slog.String("graph_id", graphID),
		slog.Int("scheduled", scheduled),
	)
}

func (o *LoggingObserver) OnJobScheduled(ctx context.Context, job *Job) {
	o.Logger.DebugContext(ctx, "job_scheduled",
		slog.String("job_id", job.ID),
		slog.String("recipient", job.Recipient),
		slog.Time("due_at", job.DueAt),
	)
}

func (o *LoggingObserver) OnJobClaimed(ctx context.Context, job *Job, reclaimed bool) {
	o.Logger.DebugContext(ctx, "job_claimed",
		slog.String("job_id", job.ID),
		slog.Bool("reclaimed", reclaimed),
	)
}

func (o *LoggingObserver) OnJobCompleted(ctx context.Context, job *Job, d time.Duration) {
	o.Logger.InfoContext(ctx, "job_completed",
		slog.String("job_id", job.ID),
		slog.String("recipient", job.Recipient),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnJobFailed(ctx context.Context, job *Job, err error) {
	o.Logger.ErrorContext(ctx, "job_failed",
		slog.String("job_id", job.ID),
		slog.String("recipient", job.Recipient),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate send durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	jobsScheduled     atomic.Int64
	jobsClaimed       atomic.Int64
	jobsReclaimed     atomic.Int64
	jobsCompleted     atomic.Int64
	jobsFailed        atomic.Int64
	totalSendDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	JobsScheduled int64
	JobsClaimed   int64
	JobsReclaimed int64
	JobsCompleted int64
	JobsFailed    int64

	AvgSendDuration time.Duration
}

func (m *BasicMetrics) OnJobScheduled(ctx context.Context, job *Job) {
	m.jobsScheduled.Add(1)
}

func (m *BasicMetrics) OnJobClaimed(ctx context.Context, job *Job, reclaimed bool) {
	m.jobsClaimed.Add(1)
	if reclaimed {
		m.jobsReclaimed.Add(1)
	}
}

func (m *BasicMetrics) OnJobCompleted(ctx context.Context, job *Job, d time.Duration) {
	m.jobsCompleted.Add(1)
	m.totalSendDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnJobFailed(ctx context.Context, job *Job, err error) {
	m.jobsFailed.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	completed := m.jobsCompleted.Load()
	totalNs := m.totalSendDuration.Load()

	var avg time.Duration
	if completed > 0 {
		avg = time.Duration(totalNs / completed)
	}

	return BasicMetricsSnapshot{
		JobsScheduled:   m.jobsScheduled.Load(),
		JobsClaimed:     m.jobsClaimed.Load(),
		JobsReclaimed:   m.jobsReclaimed.Load(),
		JobsCompleted:   completed,
		JobsFailed:      m.jobsFailed.Load(),
		AvgSendDuration: avg,
	}
}
