package drip

import (
	"context"
	"sync"

	"github.com/emailcraft/drip/pkg/api"
)

// SentMail is one message captured by a RecordingTransport.
type SentMail struct {
	To      string
	Subject string
	Body    string
}

// RecordingTransport collects every message handed to Send instead of
// delivering it. It is safe for concurrent use.
type RecordingTransport struct {
	mu   sync.Mutex
	sent []SentMail
}

var _ api.Transport = (*RecordingTransport)(nil)

// Send records the message and reports success.
func (t *RecordingTransport) Send(ctx context.Context, to, subject, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, SentMail{To: to, Subject: subject, Body: body})
	return nil
}

// Sent returns a copy of every message recorded so far, in send order.
func (t *RecordingTransport) Sent() []SentMail {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SentMail, len(t.sent))
	copy(out, t.sent)
	return out
}

// LocalRunner bundles an in-memory Scheduler, its graph store, and a
// RecordingTransport to provide a simple process-local runtime for
// development and debugging.
//
// Typical usage:
//
//	runner := drip.NewLocalRunner(drip.Options{PollInterval: 50 * time.Millisecond})
//	saved, _ := runner.Graphs.SaveGraph(ctx, graph)
//	_ = runner.Start(ctx)
//	res := runner.Scheduler.CompileAndSchedule(ctx, saved.ID)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Scheduler is the in-memory scheduler used by this runner.
	Scheduler *Scheduler

	// Graphs stores campaign graphs for Scheduler.
	Graphs GraphStore

	// Transport records messages instead of sending them.
	Transport *RecordingTransport
}

// NewLocalRunner constructs a LocalRunner backed by in-memory stores and a
// recording transport.
//
// This is intended for local development, tests, and simple single-process
// deployments. Nothing is durable.
func NewLocalRunner(opts Options) *LocalRunner {
	transport := &RecordingTransport{}
	sched, graphs := NewMemoryScheduler(transport, opts)
	return &LocalRunner{
		Scheduler: sched,
		Graphs:    graphs,
		Transport: transport,
	}
}

// Start launches the scheduler's poll loop. It returns an error if the
// runner was already started.
func (r *LocalRunner) Start(ctx context.Context) error {
	return r.Scheduler.Start(ctx)
}

// Stop shuts the scheduler down and waits for in-flight jobs within the
// configured grace period.
func (r *LocalRunner) Stop() {
	r.Scheduler.Stop()
}
