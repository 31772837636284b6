package flow

import (
	"time"

	"github.com/emailcraft/drip/pkg/api"
)

const (
	defaultSubject = "No Subject"
	defaultBody    = "No content provided"
)

// Entry is one compiled (recipient, message, send-time) combination, ready
// to be turned into a schedule record and a durable job.
type Entry struct {
	NodeID    string
	Recipient string
	Subject   string
	Body      string
	DueAt     time.Time
}

// Compile expands a validated graph into the full set of schedule entries.
// Delays are relative to now, the moment the compiler runs; the graph
// carries no anchor time of its own.
//
// Lead sources with an empty (or entirely invalid) recipient list produce
// no entries and no error. An email node reachable from one lead source via
// multiple distinct paths yields one entry per path per recipient, each with
// that path's own accumulated delay; the resulting duplicate sends are
// deliberate (see Process in internal/scheduler).
func Compile(g *api.Graph, now time.Time) []Entry {
	var entries []Entry

	for i := range g.Nodes {
		lead := &g.Nodes[i]
		if lead.Kind != api.KindLeadSource {
			continue
		}
		recipients := api.NormalizeRecipients(lead.LeadSource.Recipients)
		if len(recipients) == 0 {
			continue
		}

		for _, path := range Paths(g, lead.ID) {
			for k, nodeID := range path {
				n := g.NodeByID(nodeID)
				if n == nil || n.Kind != api.KindEmail {
					continue
				}

				subject := n.Email.Subject
				if subject == "" {
					subject = defaultSubject
				}
				body := n.Email.Body
				if body == "" {
					body = defaultBody
				}
				dueAt := now.Add(DelayBefore(g, path, k))

				for _, recipient := range recipients {
					entries = append(entries, Entry{
						NodeID:    n.ID,
						Recipient: recipient,
						Subject:   subject,
						Body:      body,
						DueAt:     dueAt,
					})
				}
			}
		}
	}

	return entries
}
