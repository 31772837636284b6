package api

import "errors"

var (
	// ErrInvalidGraph is returned when a graph fails structural validation
	// (missing payloads, edges referencing unknown nodes).
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrGraphNotFound is returned when a compile is requested for a graph
	// id that does not exist.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrStoreUnavailable is returned when the backing job store cannot be
	// reached. Callers should retry later; no partial state was written for
	// the failing job.
	ErrStoreUnavailable = errors.New("job store unavailable")

	// ErrJobNotFound is returned when a job id does not exist in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobLocked is returned when a status transition is attempted by a
	// caller that does not hold the job's lease.
	ErrJobLocked = errors.New("job locked by another owner")
)
