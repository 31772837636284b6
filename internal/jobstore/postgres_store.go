package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/emailcraft/drip/pkg/api"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// It expects an *sql.DB opened with a Postgres driver (for example,
// "github.com/jackc/pgx/v5/stdlib"). ClaimDue uses FOR UPDATE SKIP LOCKED
// so multiple scheduler instances can poll the same database without
// contending on the same rows.
type PostgresStore struct {
	db *sql.DB
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database
// and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			due_at BIGINT NOT NULL,
			status TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			last_run_at BIGINT NOT NULL DEFAULT 0,
			failure_reason TEXT NOT NULL DEFAULT '',
			lease_owner TEXT NOT NULL DEFAULT '',
			lease_expires_at BIGINT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs (status, due_at);

		CREATE TABLE IF NOT EXISTS schedule_records (
			id TEXT PRIMARY KEY,
			graph_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			scheduled_at BIGINT NOT NULL,
			status TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_graph ON schedule_records (graph_id);
	`)
	return err
}

func (s *PostgresStore) Submit(ctx context.Context, job *api.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, recipient, subject, body, due_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID,
		job.Recipient,
		job.Subject,
		job.Body,
		job.DueAt.UnixNano(),
		string(api.StatusPending),
		job.CreatedAt.UnixNano(),
	)
	return storeErr(err)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*api.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrJobNotFound
		}
		return nil, storeErr(err)
	}
	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*api.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	var clauses []string

	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, "status = $1")
	}
	if !f.DueBefore.IsZero() {
		args = append(args, f.DueBefore.UnixNano())
		if len(args) == 1 {
			clauses = append(clauses, "due_at <= $1")
		} else {
			clauses = append(clauses, "due_at <= $2")
		}
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

func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int, owner string, ttl time.Duration) ([]Claimed, error) {
	nowInt := now.UnixNano()
	expires := now.Add(ttl).UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr(err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, status FROM jobs
		WHERE (status = $1 AND due_at <= $2)
		   OR (status = $3 AND lease_expires_at <= $4)
		ORDER BY due_at, id
		LIMIT $5
		FOR UPDATE SKIP LOCKED`,
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

	for _, c := range candidates {
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = $1, lease_owner = $2, lease_expires_at = $3
			WHERE id = $4`,
			string(api.StatusLocked), owner, expires, c.id,
		); err != nil {
			return nil, storeErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr(err)
	}

	var claimed []Claimed
	for _, c := range candidates {
		job, err := s.Get(ctx, c.id)
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, Claimed{Job: job, Reclaimed: c.reclaimed})
	}
	return claimed, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id, owner string, at time.Time) error {
	return s.finish(ctx, id, `
		UPDATE jobs
		SET status = $1, last_run_at = $2, lease_owner = '', lease_expires_at = 0
		WHERE id = $3 AND status = $4 AND lease_owner = $5`,
		string(api.StatusCompleted), at.UnixNano(), id, string(api.StatusLocked), owner)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, owner string, at time.Time, reason string) error {
	return s.finish(ctx, id, `
		UPDATE jobs
		SET status = $1, last_run_at = $2, failure_reason = $3, lease_owner = '', lease_expires_at = 0
		WHERE id = $4 AND status = $5 AND lease_owner = $6`,
		string(api.StatusFailed), at.UnixNano(), reason, id, string(api.StatusLocked), owner)
}

func (s *PostgresStore) finish(ctx context.Context, id, query string, args ...any) error {
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

func (s *PostgresStore) SaveRecord(ctx context.Context, rec *api.ScheduleRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_records (id, graph_id, node_id, recipient, subject, body, scheduled_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.GraphID, rec.NodeID, rec.Recipient, rec.Subject, rec.Body,
		rec.ScheduledAt.UnixNano(), rec.Status,
	)
	return storeErr(err)
}

func (s *PostgresStore) ListRecords(ctx context.Context, graphID string) ([]*api.ScheduleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, graph_id, node_id, recipient, subject, body, scheduled_at, status
		FROM schedule_records
		WHERE graph_id = $1
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

func (s *PostgresStore) Close() error { return s.db.Close() }
