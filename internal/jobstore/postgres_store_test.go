package jobstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/emailcraft/drip/pkg/api"
)

func TestPostgresStoreSubmit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := &PostgresStore{db: db}
	ctx := context.Background()

	due := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`
		INSERT INTO jobs (id, recipient, subject, body, due_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)).
		WithArgs("j1", "a@example.com", "s", "b", due.UnixNano(), "pending", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := &api.Job{ID: "j1", Recipient: "a@example.com", Subject: "s", Body: "b", DueAt: due, CreatedAt: time.Now()}
	if err := s.Submit(ctx, job); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreMarkCompletedChecksLeaseOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := &PostgresStore{db: db}
	ctx := context.Background()
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE jobs
		SET status = $1, last_run_at = $2, lease_owner = '', lease_expires_at = 0
		WHERE id = $3 AND status = $4 AND lease_owner = $5`)).
		WithArgs("completed", at.UnixNano(), "j1", "locked", "owner1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkCompleted(ctx, "j1", "owner1", at); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreMarkCompletedZeroRowsMapsToJobLocked(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := &PostgresStore{db: db}
	ctx := context.Background()
	at := time.Now()

	mock.ExpectExec("UPDATE jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{
		"id", "recipient", "subject", "body", "due_at", "status",
		"created_at", "last_run_at", "failure_reason", "lease_owner", "lease_expires_at",
	}).AddRow("j1", "a@example.com", "s", "b", at.UnixNano(), "locked", at.UnixNano(), int64(0), "", "other", at.UnixNano())
	mock.ExpectQuery("SELECT .+ FROM jobs WHERE id").WillReturnRows(rows)

	err = s.MarkCompleted(ctx, "j1", "owner1", at)
	if !errors.Is(err, api.ErrJobLocked) {
		t.Fatalf("expected ErrJobLocked, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreClaimDueUsesSkipLocked(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := &PostgresStore{db: db}
	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, status FROM jobs(?s:.+)FOR UPDATE SKIP LOCKED").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("j1", "pending"))
	mock.ExpectExec("UPDATE jobs").
		WithArgs("locked", "owner1", now.Add(time.Minute).UnixNano(), "j1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	fullRows := sqlmock.NewRows([]string{
		"id", "recipient", "subject", "body", "due_at", "status",
		"created_at", "last_run_at", "failure_reason", "lease_owner", "lease_expires_at",
	}).AddRow("j1", "a@example.com", "s", "b", now.UnixNano(), "locked", now.UnixNano(), int64(0), "", "owner1", now.Add(time.Minute).UnixNano())
	mock.ExpectQuery("SELECT .+ FROM jobs WHERE id").WillReturnRows(fullRows)

	claimed, err := s.ClaimDue(ctx, now, 5, "owner1", time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Job.ID != "j1" || claimed[0].Reclaimed {
		t.Fatalf("unexpected claims %+v", claimed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
