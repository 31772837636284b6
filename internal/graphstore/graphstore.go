// Package graphstore persists campaign graphs for the editor's CRUD layer
// and serves them to the compiler as immutable snapshots. Graphs are stored
// whole, as one JSON document per row, mirroring how the editor submits them.
package graphstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/emailcraft/drip/pkg/api"
)

// Store is the full graph persistence contract. The compiler only needs
// api.GraphStore (the read side); the HTTP layer uses the rest.
type Store interface {
	api.GraphStore

	SaveGraph(ctx context.Context, g *api.Graph) (*api.Graph, error)
	ListGraphs(ctx context.Context) ([]*api.Graph, error)
	DeleteGraph(ctx context.Context, id string) error
	Close() error
}

// Memory is a goroutine-safe in-memory Store for tests and local use.
type Memory struct {
	mu     sync.RWMutex
	graphs map[string]*api.Graph
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory graph store.
func NewMemory() *Memory {
	return &Memory{graphs: make(map[string]*api.Graph)}
}

func (m *Memory) SaveGraph(ctx context.Context, g *api.Graph) (*api.Graph, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *g
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.graphs[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) GetGraph(ctx context.Context, id string) (*api.Graph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.graphs[id]
	if !ok {
		return nil, api.ErrGraphNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *Memory) ListGraphs(ctx context.Context) ([]*api.Graph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*api.Graph, 0, len(m.graphs))
	for _, g := range m.graphs {
		cp := *g
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) DeleteGraph(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.graphs[id]; !ok {
		return api.ErrGraphNotFound
	}
	delete(m.graphs, id)
	return nil
}

func (m *Memory) Close() error { return nil }
