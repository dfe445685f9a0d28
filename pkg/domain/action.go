package domain

import "fmt"

// Action is something an actor does to a document in its current stage.
type Action string

// Standard Actions
const (
	// ActionSubmit hands a draft over for gatekeeping.
	ActionSubmit Action = "submit"
	// ActionApprove accepts the document at the current gate.
	ActionApprove Action = "approve"
	// ActionReject sends the document back to an earlier stage.
	ActionReject Action = "reject"
	// ActionDistribute fans the document out to parallel reviewers.
	ActionDistribute Action = "distribute"
	// ActionCompleteReview closes one parallel review branch.
	ActionCompleteReview Action = "complete_review"
	// ActionConsolidate folds the reviewed feedback into one revision.
	ActionConsolidate Action = "consolidate"
	// ActionComment records a remark without moving the document.
	ActionComment Action = "comment"
)

var knownActions = map[Action]struct{}{
	ActionSubmit:         {},
	ActionApprove:        {},
	ActionReject:         {},
	ActionDistribute:     {},
	ActionCompleteReview: {},
	ActionConsolidate:    {},
	ActionComment:        {},
}

// Valid reports whether a is one of the standard actions.
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// ParseAction converts raw input (API payloads, graph files) into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidAction, s)
	}
	return a, nil
}

// Role names the responsibility an actor holds in the review process.
// Graphs may introduce their own roles; the constants cover the built-in graphs.
type Role string

const (
	RoleAuthor            Role = "author"
	RoleGatekeeper        Role = "gatekeeper"
	RoleCoordinator       Role = "coordinator"
	RoleTechnicalReviewer Role = "technical_reviewer"
	RolePolicyReviewer    Role = "policy_reviewer"
	RoleSecurityReviewer  Role = "security_reviewer"
	RoleLegal             Role = "legal"
	RoleLeadership        Role = "leadership"
	RolePublisher         Role = "publisher"

	// RoleAdmin may force transitions on behalf of other roles (with justification).
	RoleAdmin Role = "admin"
)

// Actor is the resolved identity of whoever is calling.
// The engine treats it as opaque input; authentication happens upstream.
type Actor struct {
	ID             string `json:"id" yaml:"id" mapstructure:"id"`
	Role           Role   `json:"role" yaml:"role" mapstructure:"role"`
	OrganizationID string `json:"organization_id,omitempty" yaml:"organization_id,omitempty" mapstructure:"organization_id"`
}
