// Package worker provides the dispatcher that executes claimed email jobs.
//
// The dispatcher is deliberately small: it invokes the outbound mail
// transport for one job at a time and maps the result to a Completed or
// Failed status write in the job store. Claiming, concurrency limits, and
// polling live in the scheduler; the dispatcher only ever sees jobs that
// are already locked under a lease it is told about.
//
// # Failure handling
//
// A transport error is recorded as the job's failure reason and the job
// transitions to Failed. The error is also returned to the caller for
// reporting, but it is never swallowed and never blocks other jobs. With
// the default retry policy a failure is terminal; an explicit RetryPolicy
// re-attempts the send with backoff before giving up.
//
// Multiple dispatch calls may run in parallel, one goroutine per claimed
// job, up to the scheduler's configured caps.
package worker
