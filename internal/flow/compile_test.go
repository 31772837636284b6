package flow

import (
	"testing"
	"time"

	"github.com/emailcraft/drip/pkg/api"
)

func TestCompileSchedulesPerRecipientWithAccumulatedDelay(t *testing.T) {
	g := &api.Graph{
		ID: "g1",
		Nodes: []api.Node{
			leadNode("lead", "a@example.com", "b@example.com"),
			delayNode("wait", 1, 30),
			emailNode("mail", "Welcome", "Hello there"),
		},
		Edges: []api.Edge{
			edge("e1", "lead", "wait"),
			edge("e2", "wait", "mail"),
		},
	}

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := Compile(g, now)

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	want := now.Add(90 * time.Minute)
	for _, e := range entries {
		if !e.DueAt.Equal(want) {
			t.Fatalf("expected due at %v, got %v", want, e.DueAt)
		}
		if e.NodeID != "mail" || e.Subject != "Welcome" || e.Body != "Hello there" {
			t.Fatalf("unexpected entry %+v", e)
		}
	}
	if entries[0].Recipient != "a@example.com" || entries[1].Recipient != "b@example.com" {
		t.Fatalf("unexpected recipients: %+v", entries)
	}
}

func TestCompileEmptyRecipientListProducesNothing(t *testing.T) {
	g := &api.Graph{
		ID: "g1",
		Nodes: []api.Node{
			leadNode("lead"),
			emailNode("mail", "S", "B"),
		},
		Edges: []api.Edge{edge("e1", "lead", "mail")},
	}

	if entries := Compile(g, time.Now()); len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestCompileDiamondCreatesOneJobPerPath(t *testing.T) {
	// lead -> wait(10m) -> mail and lead -> mail directly: the recipient
	// gets two jobs for the same email node, due at +10m and +0m.
	g := &api.Graph{
		ID: "g1",
		Nodes: []api.Node{
			leadNode("lead", "a@example.com"),
			delayNode("wait", 0, 10),
			emailNode("mail", "S", "B"),
		},
		Edges: []api.Edge{
			edge("e1", "lead", "wait"),
			edge("e2", "lead", "mail"),
			edge("e3", "wait", "mail"),
		},
	}

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := Compile(g, now)

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].DueAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("first path: expected +10m, got %v", entries[0].DueAt)
	}
	if !entries[1].DueAt.Equal(now) {
		t.Fatalf("second path: expected +0m, got %v", entries[1].DueAt)
	}
}

func TestCompileMultipleEmailsOnOnePath(t *testing.T) {
	g := &api.Graph{
		ID: "g1",
		Nodes: []api.Node{
			leadNode("lead", "a@example.com"),
			delayNode("d1", 0, 10),
			emailNode("m1", "first", "one"),
			delayNode("d2", 0, 20),
			emailNode("m2", "second", "two"),
		},
		Edges: []api.Edge{
			edge("e1", "lead", "d1"),
			edge("e2", "d1", "m1"),
			edge("e3", "m1", "d2"),
			edge("e4", "d2", "m2"),
		},
	}

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := Compile(g, now)

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].DueAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("m1: expected +10m, got %v", entries[0].DueAt)
	}
	if !entries[1].DueAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("m2: expected +30m, got %v", entries[1].DueAt)
	}
}

func TestCompileDefaultsSubjectAndBody(t *testing.T) {
	g := &api.Graph{
		ID: "g1",
		Nodes: []api.Node{
			leadNode("lead", "a@example.com"),
			emailNode("mail", "", ""),
		},
		Edges: []api.Edge{edge("e1", "lead", "mail")},
	}

	entries := Compile(g, time.Now())
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Subject != "No Subject" {
		t.Fatalf("expected default subject, got %q", entries[0].Subject)
	}
	if entries[0].Body != "No content provided" {
		t.Fatalf("expected default body, got %q", entries[0].Body)
	}
}

func TestCompileNormalizesCommaSeparatedRecipients(t *testing.T) {
	g := &api.Graph{
		ID: "g1",
		Nodes: []api.Node{
			leadNode("lead", " a@example.com , b@example.com,, not-an-email "),
			emailNode("mail", "S", "B"),
		},
		Edges: []api.Edge{edge("e1", "lead", "mail")},
	}

	entries := Compile(g, time.Now())
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Recipient != "a@example.com" || entries[1].Recipient != "b@example.com" {
		t.Fatalf("unexpected recipients: %+v", entries)
	}
}
