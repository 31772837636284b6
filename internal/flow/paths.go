// Package flow turns a campaign graph into concrete schedule entries:
// path enumeration, delay accumulation, and compilation into per-recipient
// email jobs.
package flow

import (
	"maps"

	"github.com/emailcraft/drip/pkg/api"
)

// Paths enumerates every simple path from startID to a sink, i.e. to each
// node with no outgoing edge reachable without revisiting a node on the
// current path. Each recursive call carries its own copy of the visited
// set, so the same node may appear on different branches (diamond shapes)
// but never twice within one path, and no branch can observe another
// branch's visits. That same check terminates traversal on cyclic graphs:
// a cycle can be entered at most once per path.
//
// A start node with no outgoing edges yields a single trivial path
// containing only itself. When a node has multiple outgoing edges they are
// explored in edge-list order, so output is deterministic for a given graph.
func Paths(g *api.Graph, startID string) [][]string {
	var paths [][]string
	walk(g, startID, nil, map[string]struct{}{}, &paths)
	return paths
}

// walk extends prefix with nodeID. onPath is the caller's visited set and
// is never mutated here; the call works on its own copy.
func walk(g *api.Graph, nodeID string, prefix []string, onPath map[string]struct{}, paths *[][]string) {
	path := append(append([]string(nil), prefix...), nodeID)
	visited := maps.Clone(onPath)
	visited[nodeID] = struct{}{}

	extended := false
	for _, e := range g.OutgoingEdges(nodeID) {
		if _, seen := visited[e.Target]; seen {
			continue
		}
		extended = true
		walk(g, e.Target, path, visited, paths)
	}

	// A node whose every outgoing edge revisits the current path is a sink
	// for this path, same as a node with no outgoing edges at all.
	if !extended {
		*paths = append(*paths, path)
	}
}
