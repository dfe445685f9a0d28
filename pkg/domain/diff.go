package domain

import (
	"slices"
)

// InstanceDiff represents the changes between two snapshots of an instance.
// It is designed to be serialized to JSON for partial updates on the client.
type InstanceDiff struct {
	// InstanceID is always present to identify the target.
	InstanceID string `json:"instance_id"`

	Active   []StageID       `json:"active,omitempty"`
	Status   *WorkflowStatus `json:"status,omitempty"`
	Branches []Branch        `json:"branches,omitempty"`

	// Appended contains the records added since the old snapshot.
	// History is append-only, so only the tail is ever sent.
	Appended []TransitionRecord `json:"appended,omitempty"`

	Revision int64 `json:"revision"`
}

// Diff calculates the difference between oldInst and newInst.
// If oldInst is nil, it returns a diff representing the entire newInst (initial load).
// It returns nil when nothing changed.
func Diff(oldInst, newInst *WorkflowInstance) *InstanceDiff {
	if newInst == nil {
		return nil
	}

	diff := &InstanceDiff{
		InstanceID: newInst.ID,
		Revision:   newInst.Revision,
	}

	if oldInst == nil || !slices.Equal(oldInst.Active, newInst.Active) {
		diff.Active = slices.Clone(newInst.Active)
	}
	if oldInst == nil || oldInst.Status != newInst.Status {
		status := newInst.Status
		diff.Status = &status
	}
	if oldInst == nil || !slices.Equal(oldInst.Branches, newInst.Branches) {
		diff.Branches = slices.Clone(newInst.Branches)
	}
	diff.Appended = diffHistory(oldInst, newInst)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffHistory(old, new *WorkflowInstance) []TransitionRecord {
	if len(new.History) == 0 {
		return nil
	}
	if old == nil {
		return slices.Clone(new.History)
	}
	if len(new.History) > len(old.History) {
		return slices.Clone(new.History[len(old.History):])
	}
	return nil
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *InstanceDiff) IsEmpty() bool {
	return d.Active == nil &&
		d.Status == nil &&
		d.Branches == nil &&
		len(d.Appended) == 0
}
