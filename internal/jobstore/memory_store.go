package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/emailcraft/drip/pkg/api"
)

// MemoryStore is a goroutine-safe Store backed by maps. It is not durable
// and is intended for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]*api.Job
	order   []string
	records map[string][]*api.ScheduleRecord
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*api.Job),
		records: make(map[string][]*api.ScheduleRecord),
	}
}

func (s *MemoryStore) Submit(ctx context.Context, job *api.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *job
	cp.Status = api.StatusPending
	s.jobs[cp.ID] = &cp
	s.order = append(s.order, cp.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*api.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, api.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*api.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.Job
	for _, id := range s.order {
		job := s.jobs[id]
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		if !f.DueBefore.IsZero() && job.DueAt.After(f.DueBefore) {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) ClaimDue(ctx context.Context, now time.Time, limit int, owner string, ttl time.Duration) ([]Claimed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*api.Job
	for _, id := range s.order {
		job := s.jobs[id]
		if claimable(job, now) {
			due = append(due, job)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })

	var claimed []Claimed
	for _, job := range due {
		if limit >= 0 && len(claimed) >= limit {
			break
		}
		reclaimed := job.Status == api.StatusLocked
		job.Status = api.StatusLocked
		job.LeaseOwner = owner
		job.LeaseExpiresAt = now.Add(ttl)

		cp := *job
		claimed = append(claimed, Claimed{Job: &cp, Reclaimed: reclaimed})
	}
	return claimed, nil
}

func claimable(job *api.Job, now time.Time) bool {
	switch job.Status {
	case api.StatusPending:
		return !job.DueAt.After(now)
	case api.StatusLocked:
		return !job.LeaseExpiresAt.After(now)
	default:
		return false
	}
}

func (s *MemoryStore) MarkCompleted(ctx context.Context, id, owner string, at time.Time) error {
	return s.finish(id, owner, func(job *api.Job) {
		job.Status = api.StatusCompleted
		job.LastRunAt = at
	})
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id, owner string, at time.Time, reason string) error {
	return s.finish(id, owner, func(job *api.Job) {
		job.Status = api.StatusFailed
		job.LastRunAt = at
		job.FailureReason = reason
	})
}

func (s *MemoryStore) finish(id, owner string, apply func(*api.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return api.ErrJobNotFound
	}
	if job.Status != api.StatusLocked || job.LeaseOwner != owner {
		return api.ErrJobLocked
	}
	apply(job)
	job.LeaseOwner = ""
	job.LeaseExpiresAt = time.Time{}
	return nil
}

func (s *MemoryStore) SaveRecord(ctx context.Context, rec *api.ScheduleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.records[rec.GraphID] = append(s.records[rec.GraphID], &cp)
	return nil
}

func (s *MemoryStore) ListRecords(ctx context.Context, graphID string) ([]*api.ScheduleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[graphID]
	out := make([]*api.ScheduleRecord, len(recs))
	for i, r := range recs {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
