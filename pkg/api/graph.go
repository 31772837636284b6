package api

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// NodeKind discriminates the payload carried by a Node.
type NodeKind string

const (
	KindLeadSource NodeKind = "leadSource"
	KindDelay      NodeKind = "delay"
	KindEmail      NodeKind = "coldEmail"
)

// LeadSourceData holds the recipient list attached to a lead-source node.
// Recipients may arrive as an already-split list or as a single
// comma-separated string; NormalizeRecipients handles both.
type LeadSourceData struct {
	Source     string   `json:"source,omitempty"`
	Recipients []string `json:"recipients"`
}

// DelayData is a wait step. Hours and Minutes are additive; missing
// fields decode as zero.
type DelayData struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// Duration returns the combined wait as a time.Duration.
func (d DelayData) Duration() time.Duration {
	return time.Duration(d.Hours)*time.Hour + time.Duration(d.Minutes)*time.Minute
}

// EmailData is the message template attached to an email node. TestRecipient
// is only used by the editor's "send test" feature, never by bulk compilation.
type EmailData struct {
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	TestRecipient string `json:"testRecipient,omitempty"`
}

// Node is one vertex of a campaign graph. Exactly one of the payload
// pointers must be set, and it must match Kind.
type Node struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`

	LeadSource *LeadSourceData `json:"leadSource,omitempty"`
	Delay      *DelayData      `json:"delay,omitempty"`
	Email      *EmailData      `json:"email,omitempty"`
}

// Edge is a directed connection between two nodes. Handles carry the
// editor's connection-point labels for multi-output nodes and have no
// semantic meaning here.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Graph is an immutable-per-run snapshot of a campaign flowchart.
type Graph struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Validate checks structural validity: every node has an id and a payload
// matching its kind, and every edge references existing node ids. It does
// not check reachability or acyclicity; traversal defends against cycles
// on its own.
func (g *Graph) Validate() error {
	ids := make(map[string]struct{}, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("%w: node %d has no id", ErrInvalidGraph, i)
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %q", ErrInvalidGraph, n.ID)
		}
		ids[n.ID] = struct{}{}

		switch n.Kind {
		case KindLeadSource:
			if n.LeadSource == nil {
				return fmt.Errorf("%w: node %q is a lead source without lead-source data", ErrInvalidGraph, n.ID)
			}
		case KindDelay:
			if n.Delay == nil {
				return fmt.Errorf("%w: node %q is a delay without delay data", ErrInvalidGraph, n.ID)
			}
		case KindEmail:
			if n.Email == nil {
				return fmt.Errorf("%w: node %q is an email without email data", ErrInvalidGraph, n.ID)
			}
		default:
			return fmt.Errorf("%w: node %q has unknown kind %q", ErrInvalidGraph, n.ID, n.Kind)
		}
	}

	for _, e := range g.Edges {
		if e.Source == "" || e.Target == "" {
			return fmt.Errorf("%w: edge %q is missing source or target", ErrInvalidGraph, e.ID)
		}
		if _, ok := ids[e.Source]; !ok {
			return fmt.Errorf("%w: edge %q references unknown source node %q", ErrInvalidGraph, e.ID, e.Source)
		}
		if _, ok := ids[e.Target]; !ok {
			return fmt.Errorf("%w: edge %q references unknown target node %q", ErrInvalidGraph, e.ID, e.Target)
		}
	}

	return nil
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// OutgoingEdges returns the edges leaving nodeID, in edge-list order.
// Traversal order (and therefore emitted path order) follows this order.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether addr looks like an email address. This is the
// same loose shape check the editor applies; it is not RFC 5322 validation.
func ValidEmail(addr string) bool {
	return emailPattern.MatchString(addr)
}

// NormalizeRecipients flattens a recipient list into trimmed, non-empty,
// syntactically valid addresses. Each input entry may itself be a
// comma-separated string. Duplicates are kept; the compiler schedules one
// job per list entry on purpose.
func NormalizeRecipients(raw []string) []string {
	var out []string
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			addr := strings.TrimSpace(part)
			if addr == "" {
				continue
			}
			if !ValidEmail(addr) {
				continue
			}
			out = append(out, addr)
		}
	}
	return out
}
