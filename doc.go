// Package drip provides an embeddable email drip-campaign engine for Go.
//
// Drip turns a flowchart describing a campaign (lead sources, wait steps,
// cold emails) into a concrete per-recipient send schedule, persists that
// schedule as durable jobs, and executes the jobs at their due times with
// at-least-once delivery. It runs fully in Go, supports multiple persistence
// backends, and integrates cleanly into existing codebases.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Graph
//  2. Scheduler
//  3. Transport
//  4. Job
//  5. LocalRunner
//
// # Graph
//
// A Graph is the campaign flowchart as the editor produced it: typed nodes
// (lead source, delay, cold email) connected by directed edges. Graphs are
// stored whole and treated as immutable snapshots at compile time. A graph
// may contain branches and even cycles; compilation enumerates every acyclic
// path from each lead source and schedules one job per email node per path
// per recipient.
//
// # Scheduler
//
// The Scheduler is the long-lived engine of the system. It exposes
// CompileAndSchedule, which resolves a stored graph into dated jobs, and a
// Start/Stop poll loop that claims due jobs under a time-bounded lease and
// hands them to the transport. Leases make execution safe across multiple
// processes sharing one database: a crashed instance's jobs are reclaimed
// once the lease expires, which is also why delivery is at-least-once rather
// than exactly-once.
//
// Schedulers can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres (multi-process deployments)
//
// # Transport
//
// A Transport delivers one email and reports the outcome:
//
//	type Transport interface {
//	    Send(ctx context.Context, to, subject, body string) error
//	}
//
// The engine is deliberately agnostic about delivery. Wrap an SMTP client,
// an HTTP mail API, or a log statement; TransportFunc adapts a plain
// function. A non-nil error marks the job failed with the error text
// recorded, after the configured RetryPolicy is exhausted.
//
// # Job
//
// A Job is one scheduled email for one recipient: subject, body, due time,
// and lifecycle status (pending, locked, completed, failed). Jobs are
// persisted when a graph is compiled and never silently dropped; a failure
// is a recorded terminal state, not a retry loop.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory scheduler, graph store, and a recording
// transport into a single process-local helper useful for development and
// unit testing. It is intentionally not crash-durable, but it is the most
// convenient way to exercise a campaign end to end.
//
// For HTTP access to the same operations, see cmd/dripd.
package drip
