package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emailcraft/drip/pkg/api"
)

func newJob(id string, due time.Time) *api.Job {
	return &api.Job{
		ID:        id,
		Recipient: id + "@example.com",
		Subject:   "s",
		Body:      "b",
		DueAt:     due,
		CreatedAt: time.Now(),
	}
}

func TestMemoryStoreSubmitAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := s.Submit(ctx, newJob("j1", now)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job, err := s.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != api.StatusPending {
		t.Fatalf("expected pending, got %q", job.Status)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, api.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryStoreClaimDueRespectsDueTimeAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.Submit(ctx, newJob("early", now.Add(-time.Minute)))
	_ = s.Submit(ctx, newJob("later", now.Add(-time.Second)))
	_ = s.Submit(ctx, newJob("future", now.Add(time.Hour)))

	claimed, err := s.ClaimDue(ctx, now, 1, "owner1", time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(claimed))
	}
	if claimed[0].Job.ID != "early" {
		t.Fatalf("expected earliest due job first, got %q", claimed[0].Job.ID)
	}
	if claimed[0].Reclaimed {
		t.Fatalf("fresh claim should not be marked reclaimed")
	}

	claimed, err = s.ClaimDue(ctx, now, 10, "owner1", time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Job.ID != "later" {
		t.Fatalf("expected only %q claimable, got %+v", "later", claimed)
	}
}

func TestMemoryStoreLockedJobNotReclaimableUntilLeaseExpires(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.Submit(ctx, newJob("j1", now.Add(-time.Minute)))

	if _, err := s.ClaimDue(ctx, now, 1, "owner1", time.Minute); err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}

	claimed, err := s.ClaimDue(ctx, now, 1, "owner2", time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected no claims while lease active, got %d", len(claimed))
	}

	// After the lease expires the job is claimable again, flagged reclaimed.
	after := now.Add(2 * time.Minute)
	claimed, err = s.ClaimDue(ctx, after, 1, "owner2", time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 1 || !claimed[0].Reclaimed {
		t.Fatalf("expected one reclaimed job, got %+v", claimed)
	}
	if claimed[0].Job.LeaseOwner != "owner2" {
		t.Fatalf("expected lease transferred to owner2, got %q", claimed[0].Job.LeaseOwner)
	}
}

func TestMemoryStoreMarkCompletedRequiresLease(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.Submit(ctx, newJob("j1", now.Add(-time.Minute)))

	if err := s.MarkCompleted(ctx, "j1", "owner1", now); !errors.Is(err, api.ErrJobLocked) {
		t.Fatalf("expected ErrJobLocked before claim, got %v", err)
	}

	if _, err := s.ClaimDue(ctx, now, 1, "owner1", time.Minute); err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if err := s.MarkCompleted(ctx, "j1", "owner2", now); !errors.Is(err, api.ErrJobLocked) {
		t.Fatalf("expected ErrJobLocked for non-owner, got %v", err)
	}
	if err := s.MarkCompleted(ctx, "j1", "owner1", now); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	job, _ := s.Get(ctx, "j1")
	if job.Status != api.StatusCompleted || job.LastRunAt.IsZero() {
		t.Fatalf("unexpected job after completion: %+v", job)
	}
	if job.DerivedStatus() != api.StatusCompleted {
		t.Fatalf("expected derived completed, got %q", job.DerivedStatus())
	}
}

func TestMemoryStoreMarkFailedIsTerminal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.Submit(ctx, newJob("j1", now.Add(-time.Minute)))
	if _, err := s.ClaimDue(ctx, now, 1, "owner1", time.Minute); err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if err := s.MarkFailed(ctx, "j1", "owner1", now, "transport said no"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	job, _ := s.Get(ctx, "j1")
	if job.FailureReason != "transport said no" {
		t.Fatalf("expected failure reason recorded, got %q", job.FailureReason)
	}
	if job.DerivedStatus() != api.StatusFailed {
		t.Fatalf("expected derived failed, got %q", job.DerivedStatus())
	}

	// Failed jobs never come back, even long after any lease would expire.
	claimed, err := s.ClaimDue(ctx, now.Add(24*time.Hour), 10, "owner2", time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("failed job must not be reclaimed, got %+v", claimed)
	}
}

func TestMemoryStoreListFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.Submit(ctx, newJob("j1", now.Add(-time.Minute)))
	_ = s.Submit(ctx, newJob("j2", now.Add(time.Hour)))
	if _, err := s.ClaimDue(ctx, now, 1, "owner1", time.Minute); err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}

	pending, err := s.List(ctx, Filter{Status: api.StatusPending})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "j2" {
		t.Fatalf("expected only j2 pending, got %+v", pending)
	}

	due, err := s.List(ctx, Filter{DueBefore: now})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(due) != 1 || due[0].ID != "j1" {
		t.Fatalf("expected only j1 due, got %+v", due)
	}
}

func TestMemoryStoreRecords(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := &api.ScheduleRecord{
		ID: "r1", GraphID: "g1", NodeID: "mail",
		Recipient: "a@example.com", Subject: "s", Body: "b",
		ScheduledAt: time.Now(), Status: api.RecordStatusScheduled,
	}
	if err := s.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	recs, err := s.ListRecords(ctx, "g1")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(recs) != 1 || recs[0].Recipient != "a@example.com" {
		t.Fatalf("unexpected records %+v", recs)
	}
	if recs, _ := s.ListRecords(ctx, "other"); len(recs) != 0 {
		t.Fatalf("expected no records for other graph")
	}
}
