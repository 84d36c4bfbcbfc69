package models

import "time"

// Priority orders mail within a recipient's mailbox.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// rank gives each Priority a sort weight, highest served first.
// Unknown priorities are treated as PriorityNormal.
func (p Priority) rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Less reports whether p should be served before other, per §4.2: priorities
// served highest-first, then by enqueue order within a class.
func (p Priority) Less(other Priority) bool {
	return p.rank() > other.rank()
}

// Mail is an asynchronous message exchanged between agents (or "user") via
// the Mailbox. See spec §3 "Mail".
type Mail struct {
	ID        string         `json:"id"`
	From      string         `json:"from_agent"`
	To        string         `json:"to_agent"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Priority  Priority       `json:"priority"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Read      bool           `json:"read"`

	// seq breaks ties between mail of equal priority, preserving FIFO
	// enqueue order. Assigned by the mailbox, not by callers.
	seq uint64
}

// Seq returns the mailbox-assigned enqueue sequence number.
func (m *Mail) Seq() uint64 { return m.seq }

// SetSeq is used by the mailbox to stamp insertion order. Exported so
// alternate Mailbox implementations outside this module can satisfy the
// same FIFO-within-priority contract.
func (m *Mail) SetSeq(seq uint64) { m.seq = seq }
