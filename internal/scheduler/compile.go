package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emailcraft/drip/internal/flow"
	"github.com/emailcraft/drip/pkg/api"
)

// CompileAndSchedule loads the graph, compiles it, and submits one audit
// record plus one durable job per compiled entry.
//
// Delays are anchored to the moment this call runs. Re-running the call on
// an unchanged graph schedules a second, independent batch of jobs; there
// is no deduplication across compile calls. Likewise an email node reached
// over several distinct paths is scheduled once per path. Both are the
// documented behavior of the flowchart processor, not accidents.
//
// Per-entry submit failures are isolated: they reduce the scheduled count
// and show up in the message, but do not abort or roll back sibling
// entries. Only a missing or invalid graph fails the call as a whole.
func (s *Scheduler) CompileAndSchedule(ctx context.Context, graphID string) api.CompileResult {
	g, err := s.graphs.GetGraph(ctx, graphID)
	if err != nil {
		s.opts.Observer.OnCompile(ctx, graphID, 0, err)
		if errors.Is(err, api.ErrGraphNotFound) {
			return api.CompileResult{Success: false, Message: "flowchart not found", Err: err}
		}
		return api.CompileResult{Success: false, Message: "error processing flowchart", Err: err}
	}

	if err := g.Validate(); err != nil {
		s.opts.Observer.OnCompile(ctx, graphID, 0, err)
		return api.CompileResult{Success: false, Message: err.Error(), Err: err}
	}

	now := time.Now()
	entries := flow.Compile(g, now)

	scheduled := 0
	failed := 0
	for _, e := range entries {
		rec := &api.ScheduleRecord{
			ID:          uuid.NewString(),
			GraphID:     g.ID,
			NodeID:      e.NodeID,
			Recipient:   e.Recipient,
			Subject:     e.Subject,
			Body:        e.Body,
			ScheduledAt: e.DueAt,
			Status:      api.RecordStatusScheduled,
		}
		job := &api.Job{
			ID:        uuid.NewString(),
			Recipient: e.Recipient,
			Subject:   e.Subject,
			Body:      e.Body,
			DueAt:     e.DueAt,
			Status:    api.StatusPending,
			CreatedAt: now,
		}

		if err := s.store.Submit(ctx, job); err != nil {
			failed++
			continue
		}
		// The audit record is best-effort; the job store stays
		// authoritative for execution either way.
		_ = s.store.SaveRecord(ctx, rec)

		scheduled++
		s.opts.Observer.OnJobScheduled(ctx, job)
	}

	s.opts.Observer.OnCompile(ctx, g.ID, scheduled, nil)

	msg := "Flowchart processed successfully"
	if failed > 0 {
		msg = fmt.Sprintf("Flowchart processed, %d of %d jobs failed to schedule", failed, len(entries))
	}
	return api.CompileResult{Success: true, Message: msg, Scheduled: scheduled}
}
