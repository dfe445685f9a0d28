package domain

// Outcome is the first-class result of proposing an edit.
// Conflicts and stale anchors are outcomes, not errors.
type Outcome string

const (
	OutcomeAccepted       Outcome = "accepted"
	OutcomeConflict       Outcome = "conflict"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeAlreadyApplied Outcome = "already_applied"
)

// ProposeResult describes what happened to a proposed edit.
type ProposeResult struct {
	Outcome  Outcome          `json:"outcome"`
	Feedback *FeedbackItem    `json:"feedback"`
	Version  *DocumentVersion `json:"version,omitempty"` // the new version when accepted, else current
	// Conflicts lists the conflicts that block the item (created now or earlier).
	Conflicts []*Conflict `json:"conflicts,omitempty"`
}

// ResolveResult describes a conflict resolution.
type ResolveResult struct {
	Conflict *Conflict `json:"conflict"`
	// Proposal is the result of re-proposing the chosen edit, if any.
	Proposal *ProposeResult `json:"proposal,omitempty"`
}
