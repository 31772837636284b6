package drip

import (
	"database/sql"

	"github.com/emailcraft/drip/internal/graphstore"
	"github.com/emailcraft/drip/internal/jobstore"
	"github.com/emailcraft/drip/internal/scheduler"
	"github.com/emailcraft/drip/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Graph                = api.Graph
	Node                 = api.Node
	Edge                 = api.Edge
	NodeKind             = api.NodeKind
	LeadSourceData       = api.LeadSourceData
	DelayData            = api.DelayData
	EmailData            = api.EmailData
	Job                  = api.Job
	JobView              = api.JobView
	JobStatus            = api.JobStatus
	ScheduleRecord       = api.ScheduleRecord
	CompileResult        = api.CompileResult
	RetryPolicy          = api.RetryPolicy
	Transport            = api.Transport
	TransportFunc        = api.TransportFunc
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NormalizeRecipients  = api.NormalizeRecipients
)

// Re-export node kinds and job statuses for convenience.

const (
	KindLeadSource = api.KindLeadSource
	KindDelay      = api.KindDelay
	KindEmail      = api.KindEmail

	StatusPending   = api.StatusPending
	StatusLocked    = api.StatusLocked
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
)

// Options configures a Scheduler built by one of the constructors below.
type Options = scheduler.Options

// Scheduler compiles stored campaign graphs into jobs and executes them.
type Scheduler = scheduler.Scheduler

// GraphStore persists campaign graphs.
type GraphStore = graphstore.Store

// Scheduler constructors
// These wrap the internal packages so external callers never need to
// import them directly.

// NewMemoryScheduler returns a Scheduler backed entirely by in-memory
// stores. Nothing survives a restart; intended for tests and development.
func NewMemoryScheduler(transport api.Transport, opts Options) (*Scheduler, GraphStore) {
	graphs := graphstore.NewMemory()
	return scheduler.New(jobstore.NewMemoryStore(), graphs, transport, opts), graphs
}

// NewSQLiteScheduler returns a Scheduler that persists graphs, jobs, and
// schedule records in a SQLite database. The schema is created on first use.
func NewSQLiteScheduler(db *sql.DB, transport api.Transport, opts Options) (*Scheduler, GraphStore, error) {
	jobs, err := jobstore.NewSQLiteStore(db)
	if err != nil {
		return nil, nil, err
	}
	graphs, err := graphstore.NewSQLite(db)
	if err != nil {
		return nil, nil, err
	}
	return scheduler.New(jobs, graphs, transport, opts), graphs, nil
}

// NewPostgresScheduler returns a Scheduler that persists graphs, jobs, and
// schedule records in PostgreSQL. Claiming uses FOR UPDATE SKIP LOCKED, so
// multiple processes may share one database safely.
func NewPostgresScheduler(db *sql.DB, transport api.Transport, opts Options) (*Scheduler, GraphStore, error) {
	jobs, err := jobstore.NewPostgresStore(db)
	if err != nil {
		return nil, nil, err
	}
	graphs, err := graphstore.NewPostgres(db)
	if err != nil {
		return nil, nil, err
	}
	return scheduler.New(jobs, graphs, transport, opts), graphs, nil
}
