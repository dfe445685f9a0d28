package domain

import (
	"fmt"
	"time"
)

// ConflictStatus tracks whether a conflict still blocks its items.
type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
)

// Resolution is the closed set of decisions that settle a conflict.
type Resolution string

const (
	ResolutionAcceptA      Resolution = "accept_a"
	ResolutionAcceptB      Resolution = "accept_b"
	ResolutionAcceptMerged Resolution = "accept_merged"
	ResolutionRejectBoth   Resolution = "reject_both"
)

// Decision is a resolution plus, for accept_merged, the merged replacement text.
type Decision struct {
	Resolution Resolution `json:"resolution"`
	Text       string     `json:"text,omitempty"`
}

// Validate checks the decision shape.
func (d Decision) Validate() error {
	switch d.Resolution {
	case ResolutionAcceptA, ResolutionAcceptB, ResolutionRejectBoth:
		return nil
	case ResolutionAcceptMerged:
		if d.Text == "" {
			return fmt.Errorf("%w: accept_merged requires text", ErrInvalidDecision)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown resolution %q", ErrInvalidDecision, d.Resolution)
}

// Conflict records two edits whose locations overlap in the same version.
type Conflict struct {
	ID          string         `json:"id"`
	DocumentID  string         `json:"document_id"`
	FeedbackIDA string         `json:"feedback_id_a"`
	FeedbackIDB string         `json:"feedback_id_b"`
	Version     int            `json:"version"`
	Overlap     string         `json:"overlap"`
	Status      ConflictStatus `json:"status"`

	Resolution       Resolution `json:"resolution,omitempty"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
	ResolvedAt       time.Time  `json:"resolved_at,omitempty"`
	ResultFeedbackID string     `json:"result_feedback_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Involves reports whether the feedback item is one side of the conflict.
func (c *Conflict) Involves(feedbackID string) bool {
	return c.FeedbackIDA == feedbackID || c.FeedbackIDB == feedbackID
}

// Clone returns a copy.
func (c *Conflict) Clone() *Conflict {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
