package domain

import (
	"slices"
	"time"
)

// WorkflowStatus defines the lifecycle position of an instance.
type WorkflowStatus string

const (
	StatusActive    WorkflowStatus = "active"    // Normal operation
	StatusCompleted WorkflowStatus = "completed" // Publication reached; no further advances
	StatusReset     WorkflowStatus = "reset"     // Sent back to the start stage
)

// RecordKind classifies a TransitionRecord.
type RecordKind string

const (
	RecordStart          RecordKind = "start"
	RecordRestart        RecordKind = "restart"
	RecordTransition     RecordKind = "transition"
	RecordComment        RecordKind = "comment"
	RecordBranchComplete RecordKind = "branch_complete"
	RecordFanIn          RecordKind = "fan_in"
	RecordReset          RecordKind = "reset"
)

// RecordMetadata is the free-form part of an audit record.
type RecordMetadata struct {
	Comment string `json:"comment,omitempty"`
	// Justification is mandatory when an override role acts outside its assignment.
	Justification string `json:"justification,omitempty"`
}

// TransitionRecord is one immutable entry of the audit trail.
type TransitionRecord struct {
	Sequence   int            `json:"sequence"`
	Kind       RecordKind     `json:"kind"`
	From       []StageID      `json:"from,omitempty"`
	To         []StageID      `json:"to,omitempty"`
	Action     Action         `json:"action,omitempty"`
	ActingRole Role           `json:"acting_role,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Override   bool           `json:"override,omitempty"`
	Metadata   RecordMetadata `json:"metadata"`
}

// Branch tracks completion of one parallel branch.
type Branch struct {
	StageID     StageID   `json:"stage_id"`
	Complete    bool      `json:"complete"`
	CompletedBy string    `json:"completed_by,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// WorkflowInstance is the position of one document in a stage graph.
type WorkflowInstance struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	GraphID    string         `json:"graph_id"`
	Status     WorkflowStatus `json:"status"`

	// Active holds the current stage, or every branch of the current fan-out.
	Active []StageID `json:"active"`
	// ParentStageID is set while a fan-out is in progress.
	ParentStageID StageID  `json:"parent_stage_id,omitempty"`
	Branches      []Branch `json:"branches,omitempty"`

	History []TransitionRecord `json:"history"`

	// Revision is bumped by every successful save and used as the CAS token.
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CurrentStage returns the stage the document is considered to be "in":
// the parallel parent during a fan-out, otherwise the single active stage.
func (w *WorkflowInstance) CurrentStage() StageID {
	if w.ParentStageID != "" {
		return w.ParentStageID
	}
	if len(w.Active) == 0 {
		return ""
	}
	return w.Active[0]
}

// IsActive reports whether id is one of the active stages.
func (w *WorkflowInstance) IsActive(id StageID) bool {
	return slices.Contains(w.Active, id)
}

// Branch returns the branch tracking record for id.
func (w *WorkflowInstance) Branch(id StageID) (*Branch, bool) {
	for i := range w.Branches {
		if w.Branches[i].StageID == id {
			return &w.Branches[i], true
		}
	}
	return nil, false
}

// PendingBranches lists branches that have not completed yet.
func (w *WorkflowInstance) PendingBranches() []StageID {
	var ids []StageID
	for _, b := range w.Branches {
		if !b.Complete {
			ids = append(ids, b.StageID)
		}
	}
	return ids
}

// Append adds a record to the history, assigning its sequence number.
func (w *WorkflowInstance) Append(rec TransitionRecord) TransitionRecord {
	rec.Sequence = len(w.History) + 1
	w.History = append(w.History, rec)
	return rec
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (w *WorkflowInstance) Clone() *WorkflowInstance {
	if w == nil {
		return nil
	}
	c := *w
	c.Active = slices.Clone(w.Active)
	c.Branches = slices.Clone(w.Branches)
	c.History = make([]TransitionRecord, len(w.History))
	for i, r := range w.History {
		r.From = slices.Clone(r.From)
		r.To = slices.Clone(r.To)
		c.History[i] = r
	}
	return &c
}

// AdvanceRequest asks the controller to perform an action on an instance.
type AdvanceRequest struct {
	InstanceID string
	Action     Action
	Actor      Actor
	// StageID selects the stage to act on; optional when it can be inferred.
	StageID  StageID
	Metadata RecordMetadata
}

// AdvanceResult describes the effect of a successful advance.
type AdvanceResult struct {
	Instance *WorkflowInstance  `json:"instance"`
	Records  []TransitionRecord `json:"records"`
	// FanIn is true when this call completed the last branch and joined the fan-out.
	FanIn bool `json:"fan_in,omitempty"`
}
