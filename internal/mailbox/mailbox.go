// Package mailbox implements the asynchronous inter-agent mail exchange
// (spec §4.2). Mailboxes are keyed by recipient agent id and are safe for
// concurrent use: a single map guarded by one sync.Mutex, after the
// teacher's registry convention (internal/agent/tool_registry.go).
package mailbox

import (
	"sort"
	"sync"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// Mailbox holds undelivered and delivered mail for every recipient known to
// it. Mail is served highest-priority-first, then FIFO within a priority
// class (spec §4.2); the sequence counter is process-wide so ties across
// recipients still resolve to global arrival order.
type Mailbox struct {
	mu      sync.Mutex
	nextSeq uint64
	byAgent map[string][]*models.Mail
}

// New returns an empty Mailbox.
func New() *Mailbox {
	return &Mailbox{byAgent: make(map[string][]*models.Mail)}
}

// Send enqueues mail for m.To, stamping it with the next sequence number.
// Send is the only mutator that assigns identity/ordering, so concurrent
// Send calls can never hand out the same sequence number twice.
func (mb *Mailbox) Send(mail *models.Mail) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.nextSeq++
	mail.SetSeq(mb.nextSeq)
	recipient := models.CanonicalID(mail.To)
	mb.byAgent[recipient] = append(mb.byAgent[recipient], mail)
}

// sortedInbox returns agent's queue ordered priority-first then FIFO,
// mutating the stored slice in place so repeat calls are cheap once sorted.
func (mb *Mailbox) sortedInbox(agentID string) []*models.Mail {
	inbox := mb.byAgent[agentID]
	sort.SliceStable(inbox, func(i, j int) bool {
		if inbox[i].Priority != inbox[j].Priority {
			return inbox[i].Priority.Less(inbox[j].Priority)
		}
		return inbox[i].Seq() < inbox[j].Seq()
	})
	return inbox
}

// Check returns and marks read the next unread mail for agentID, or nil if
// there is none. A given mail is returned to exactly one Check call: once
// marked read it is skipped by every subsequent Check (spec §4.2 "no
// interleaving of concurrent checks can return the same mail twice").
func (mb *Mailbox) Check(agentID string) *models.Mail {
	agentID = models.CanonicalID(agentID)
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for _, m := range mb.sortedInbox(agentID) {
		if !m.Read {
			m.Read = true
			return m
		}
	}
	return nil
}

// CheckAll returns and marks read every unread mail for agentID, ordered
// priority-first then FIFO (spec §4.2 "check(agent_id) → [mail]: returns
// all unread mail for that agent and marks them read").
func (mb *Mailbox) CheckAll(agentID string) []*models.Mail {
	agentID = models.CanonicalID(agentID)
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []*models.Mail
	for _, m := range mb.sortedInbox(agentID) {
		if !m.Read {
			m.Read = true
			out = append(out, m)
		}
	}
	return out
}

// HasUnread reports whether agentID has any unread mail.
func (mb *Mailbox) HasUnread(agentID string) bool {
	agentID = models.CanonicalID(agentID)
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for _, m := range mb.byAgent[agentID] {
		if !m.Read {
			return true
		}
	}
	return false
}

// UnreadCount returns the number of unread mail items for agentID.
func (mb *Mailbox) UnreadCount(agentID string) int {
	agentID = models.CanonicalID(agentID)
	mb.mu.Lock()
	defer mb.mu.Unlock()
	n := 0
	for _, m := range mb.byAgent[agentID] {
		if !m.Read {
			n++
		}
	}
	return n
}

// All returns agentID's full mail history (read and unread), ordered
// priority-first then FIFO.
func (mb *Mailbox) All(agentID string) []*models.Mail {
	agentID = models.CanonicalID(agentID)
	mb.mu.Lock()
	defer mb.mu.Unlock()
	inbox := mb.sortedInbox(agentID)
	out := make([]*models.Mail, len(inbox))
	copy(out, inbox)
	return out
}

// Clear discards agentID's entire mail history. Used by slash-command reset
// flows (spec §4.9 "/clear").
func (mb *Mailbox) Clear(agentID string) {
	agentID = models.CanonicalID(agentID)
	mb.mu.Lock()
	defer mb.mu.Unlock()
	delete(mb.byAgent, agentID)
}
