package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emailcraft/drip/internal/graphstore"
	"github.com/emailcraft/drip/internal/jobstore"
	"github.com/emailcraft/drip/pkg/api"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func submitDueJob(t *testing.T, store jobstore.Store, id string) {
	t.Helper()
	err := store.Submit(context.Background(), &api.Job{
		ID:        id,
		Recipient: id + "@example.com",
		Subject:   "s",
		Body:      "b",
		DueAt:     time.Now().Add(-time.Second),
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestSchedulerExecutesDueJobs(t *testing.T) {
	store := jobstore.NewMemoryStore()
	graphs := graphstore.NewMemory()

	var sent atomic.Int64
	transport := api.TransportFunc(func(ctx context.Context, to, subject, body string) error {
		sent.Add(1)
		return nil
	})

	s := New(store, graphs, transport, Options{PollInterval: 10 * time.Millisecond})
	submitDueJob(t, store, "j1")
	submitDueJob(t, store, "j2")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return sent.Load() == 2 })
	waitFor(t, 2*time.Second, func() bool {
		jobs, _ := store.List(context.Background(), jobstore.Filter{Status: api.StatusCompleted})
		return len(jobs) == 2
	})
}

func TestSchedulerRecordsTransportFailure(t *testing.T) {
	store := jobstore.NewMemoryStore()
	graphs := graphstore.NewMemory()

	transport := api.TransportFunc(func(ctx context.Context, to, subject, body string) error {
		return errors.New("relay rejected message")
	})

	s := New(store, graphs, transport, Options{PollInterval: 10 * time.Millisecond})
	submitDueJob(t, store, "j1")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool {
		job, err := store.Get(context.Background(), "j1")
		return err == nil && job.Status == api.StatusFailed
	})

	job, _ := store.Get(context.Background(), "j1")
	if job.FailureReason != "relay rejected message" {
		t.Fatalf("expected failure reason recorded, got %q", job.FailureReason)
	}
}

func TestSchedulerHonorsConcurrencyCap(t *testing.T) {
	store := jobstore.NewMemoryStore()
	graphs := graphstore.NewMemory()

	var (
		mu      sync.Mutex
		active  int
		peak    int
		release = make(chan struct{})
	)
	transport := api.TransportFunc(func(ctx context.Context, to, subject, body string) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		<-release

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	s := New(store, graphs, transport, Options{
		PollInterval:  10 * time.Millisecond,
		MaxConcurrent: 2,
	})
	for _, id := range []string{"j1", "j2", "j3", "j4", "j5"} {
		submitDueJob(t, store, id)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return active == 2
	})
	// Give the poll loop a few more rounds to (incorrectly) exceed the cap.
	time.Sleep(50 * time.Millisecond)
	close(release)

	waitFor(t, 2*time.Second, func() bool {
		jobs, _ := store.List(context.Background(), jobstore.Filter{Status: api.StatusCompleted})
		return len(jobs) == 5
	})
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("concurrency cap exceeded: peak %d", peak)
	}
}

func TestSchedulerStopPreventsNewClaims(t *testing.T) {
	store := jobstore.NewMemoryStore()
	graphs := graphstore.NewMemory()

	var sent atomic.Int64
	transport := api.TransportFunc(func(ctx context.Context, to, subject, body string) error {
		sent.Add(1)
		return nil
	})

	s := New(store, graphs, transport, Options{PollInterval: 10 * time.Millisecond})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()

	submitDueJob(t, store, "late")
	time.Sleep(50 * time.Millisecond)

	if sent.Load() != 0 {
		t.Fatalf("expected no sends after Stop, got %d", sent.Load())
	}
	job, _ := store.Get(context.Background(), "late")
	if job.Status != api.StatusPending {
		t.Fatalf("expected job left pending, got %q", job.Status)
	}
}

func TestSchedulerStopLetsInFlightSendFinish(t *testing.T) {
	store := jobstore.NewMemoryStore()
	graphs := graphstore.NewMemory()

	// A transport that honors ctx cancellation, like a real SMTP client.
	started := make(chan struct{})
	transport := api.TransportFunc(func(ctx context.Context, to, subject, body string) error {
		close(started)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
			return nil
		}
	})

	s := New(store, graphs, transport, Options{
		PollInterval:  10 * time.Millisecond,
		ShutdownGrace: 500 * time.Millisecond,
	})
	submitDueJob(t, store, "j1")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-started
	// Stop while the send is in flight. The job must complete within the
	// grace period, not fail with a cancellation error.
	s.Stop()

	job, err := store.Get(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != api.StatusCompleted {
		t.Fatalf("in-flight job should complete during graceful Stop; got status %q reason %q",
			job.Status, job.FailureReason)
	}
}

func TestSchedulerStopAbandonsJobAfterGrace(t *testing.T) {
	store := jobstore.NewMemoryStore()
	graphs := graphstore.NewMemory()

	// A send that outlives the grace period but respects cancellation.
	started := make(chan struct{})
	transport := api.TransportFunc(func(ctx context.Context, to, subject, body string) error {
		close(started)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Hour):
			return nil
		}
	})

	s := New(store, graphs, transport, Options{
		PollInterval:  10 * time.Millisecond,
		ShutdownGrace: 50 * time.Millisecond,
		LeaseTTL:      time.Minute,
	})
	submitDueJob(t, store, "j1")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-started
	s.Stop()

	// The dispatcher observes the cancellation only after Stop returned,
	// so give it a moment to record the outcome.
	time.Sleep(50 * time.Millisecond)

	// The abandoned job must not be terminally Failed: it keeps its lease
	// and is reclaimed once the lease expires.
	job, err := store.Get(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status == api.StatusFailed {
		t.Fatalf("abandoned job must stay reclaimable, got terminal failure %q", job.FailureReason)
	}
}

func TestSchedulerStartTwiceFails(t *testing.T) {
	store := jobstore.NewMemoryStore()
	graphs := graphstore.NewMemory()
	s := New(store, graphs, nopTransport(), Options{PollInterval: time.Hour})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected second Start to fail")
	}
}

func TestSchedulerReclaimsAbandonedJob(t *testing.T) {
	store := jobstore.NewMemoryStore()
	graphs := graphstore.NewMemory()

	// Simulate a crashed instance: the job is locked under a lease that
	// has already expired.
	submitDueJob(t, store, "j1")
	claimed, err := store.ClaimDue(context.Background(), time.Now(), 1, "dead-instance", -time.Second)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("seed claim failed: %v (%d)", err, len(claimed))
	}

	var sent atomic.Int64
	transport := api.TransportFunc(func(ctx context.Context, to, subject, body string) error {
		sent.Add(1)
		return nil
	})

	s := New(store, graphs, transport, Options{PollInterval: 10 * time.Millisecond})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return sent.Load() == 1 })

	job, _ := store.Get(context.Background(), "j1")
	if job.Status != api.StatusCompleted {
		t.Fatalf("expected reclaimed job completed, got %q", job.Status)
	}
}
