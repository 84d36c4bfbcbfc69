package models

// ContinuationStatus is the model's declared intent for re-entry. See spec
// §4.5 and GLOSSARY "Continuation".
type ContinuationStatus string

const (
	ContinuationContinue  ContinuationStatus = "CONTINUE"
	ContinuationTerminate ContinuationStatus = "TERMINATE"
)

// ContinuationState is derived from the most recent model response; it is
// transient and never persisted on its own (spec §3).
type ContinuationState struct {
	Status ContinuationStatus `json:"status"`
	Reason string             `json:"reason,omitempty"`
}

// ShouldContinue reports whether this state requests re-entry.
func (c *ContinuationState) ShouldContinue() bool {
	return c != nil && c.Status == ContinuationContinue
}
