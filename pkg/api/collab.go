package api

import "context"

// GraphStore is the collaborator that owns campaign graph persistence.
// The editor's CRUD layer implements it; the scheduler only reads.
type GraphStore interface {
	// GetGraph returns the graph with the given id, or ErrGraphNotFound.
	GetGraph(ctx context.Context, id string) (*Graph, error)
}

// Transport is the outbound mail collaborator. A returned error marks the
// job failed; the scheduler does not retry inside a single Send call.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, to, subject, body string) error

func (f TransportFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}
