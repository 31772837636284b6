package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/emailcraft/drip/pkg/api"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			due_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_run_at INTEGER NOT NULL DEFAULT 0,
			failure_reason TEXT NOT NULL DEFAULT '',
			lease_owner TEXT NOT NULL DEFAULT '',
			lease_expires_at INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs (status, due_at);

		CREATE TABLE IF NOT EXISTS schedule_records (
			id TEXT PRIMARY KEY,
			graph_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			scheduled_at INTEGER NOT NULL,
			status TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_graph ON schedule_records (graph_id);
	`)
	return err
}

func (s *SQLiteStore) Submit(ctx context.Context, job *api.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, recipient, subject, body, due_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Recipient,
		job.Subject,
		job.Body,
		job.DueAt.UnixNano(),
		string(api.StatusPending),
		job.CreatedAt.UnixNano(),
	)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

const jobColumns = `id, recipient, subject, body, due_at, status, created_at, last_run_at, failure_reason, lease_owner, lease_expires_at`

func scanJob(row interface{ Scan(...any) error }) (*api.Job, error) {
	var (
		job          api.Job
		statusStr    string
		dueAt        int64
		createdAt    int64
		lastRunAt    int64
		leaseExpires int64
	)
	err := row.Scan(&job.ID, &job.Recipient, &job.Subject, &job.Body,
		&dueAt, &statusStr, &createdAt, &lastRunAt, &job.FailureReason,
		&job.LeaseOwner, &leaseExpires)
	if err != nil {
		return nil, err
	}
	job.Status = api.JobStatus(statusStr)
	job.DueAt = time.Unix(0, dueAt)
	job.CreatedAt = time.Unix(0, createdAt)
	if lastRunAt != 0 {
		job.LastRunAt = time.Unix(0, lastRunAt)
	}
	if leaseExpires != 0 {
		job.LeaseExpiresAt = time.Unix(0, leaseExpires)
	}
	return &job, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*api.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrJobNotFound
		}
		return nil, storeErr(err)
	}
	return job, nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]*api.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	var clauses []string

	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.DueBefore.IsZero() {
		clauses = append(clauses, "due_at <= ?")
		args = append(args, f.DueBefore.UnixNano())
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []*api.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ClaimDue(ctx context.Context, now time.Time, limit int, owner string, ttl time.Duration) ([]Claimed, error) {
	nowInt := now.UnixNano()
	expires := now.Add(ttl).UnixNano()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status FROM jobs
		WHERE (status = ? AND due_at <= ?)
		   OR (status = ? AND lease_expires_at <= ?)
		ORDER BY due_at, id
		LIMIT ?`,
		string(api.StatusPending), nowInt,
		string(api.StatusLocked), nowInt,
		limit,
	)
	if err != nil {
		return nil, storeErr(err)
	}

	type candidate struct {
		id        string
		reclaimed bool
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		var statusStr string
		if err := rows.Scan(&c.id, &statusStr); err != nil {
			rows.Close()
			return nil, err
		}
		c.reclaimed = api.JobStatus(statusStr) == api.StatusLocked
		candidates = append(candidates, c)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	// Claim each candidate with a compare-and-swap update. The claimability
	// condition is re-checked inside the UPDATE so a concurrent claimer
	// racing for the same row leaves exactly one winner.
	var claimed []Claimed
	for _, c := range candidates {
		res, err := s.db.ExecContext(ctx, `
			UPDATE jobs
			SET status = ?, lease_owner = ?, lease_expires_at = ?
			WHERE id = ?
			AND (
				(status = ? AND due_at <= ?)
				OR (status = ? AND lease_expires_at <= ?)
			)`,
			string(api.StatusLocked), owner, expires,
			c.id,
			string(api.StatusPending), nowInt,
			string(api.StatusLocked), nowInt,
		)
		if err != nil {
			return claimed, storeErr(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return claimed, err
		}
		if n == 0 {
			continue
		}
		job, err := s.Get(ctx, c.id)
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, Claimed{Job: job, Reclaimed: c.reclaimed})
	}
	return claimed, nil
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, id, owner string, at time.Time) error {
	return s.finish(ctx, id, owner, `
		UPDATE jobs
		SET status = ?, last_run_at = ?, lease_owner = '', lease_expires_at = 0
		WHERE id = ? AND status = ? AND lease_owner = ?`,
		string(api.StatusCompleted), at.UnixNano(), id, string(api.StatusLocked), owner)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id, owner string, at time.Time, reason string) error {
	return s.finish(ctx, id, owner, `
		UPDATE jobs
		SET status = ?, last_run_at = ?, failure_reason = ?, lease_owner = '', lease_expires_at = 0
		WHERE id = ? AND status = ? AND lease_owner = ?`,
		string(api.StatusFailed), at.UnixNano(), reason, id, string(api.StatusLocked), owner)
}

func (s *SQLiteStore) finish(ctx context.Context, id, owner, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return api.ErrJobLocked
	}
	return nil
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *api.ScheduleRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_records (id, graph_id, node_id, recipient, subject, body, scheduled_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.GraphID, rec.NodeID, rec.Recipient, rec.Subject, rec.Body,
		rec.ScheduledAt.UnixNano(), rec.Status,
	)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, graphID string) ([]*api.ScheduleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, graph_id, node_id, recipient, subject, body, scheduled_at, status
		FROM schedule_records
		WHERE graph_id = ?
		ORDER BY scheduled_at, id`, graphID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []*api.ScheduleRecord
	for rows.Next() {
		var rec api.ScheduleRecord
		var scheduledAt int64
		if err := rows.Scan(&rec.ID, &rec.GraphID, &rec.NodeID, &rec.Recipient,
			&rec.Subject, &rec.Body, &scheduledAt, &rec.Status); err != nil {
			return nil, err
		}
		rec.ScheduledAt = time.Unix(0, scheduledAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// storeErr maps driver-level connection failures to ErrStoreUnavailable so
// callers can distinguish "retry later" from data errors.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) {
		return errors.Join(api.ErrStoreUnavailable, err)
	}
	return err
}
