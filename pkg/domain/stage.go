package domain

import "slices"

// StageID identifies a stage within a graph.
type StageID string

// StageType defines the control flow role of a stage.
type StageType string

const (
	// StageTypeTask is a regular gated step owned by one role.
	StageTypeTask StageType = "task"
	// StageTypeParallel groups parallel branches. It is never active itself.
	StageTypeParallel StageType = "parallel"
	// StageTypeBranch is one parallel branch under a StageTypeParallel parent.
	StageTypeBranch StageType = "branch"
	// StageTypeTerminal has no outgoing transitions (e.g. publication).
	StageTypeTerminal StageType = "terminal"
)

// Valid reports whether t is a known stage type.
func (t StageType) Valid() bool {
	switch t {
	case StageTypeTask, StageTypeParallel, StageTypeBranch, StageTypeTerminal:
		return true
	}
	return false
}

// StageNode is a step in the review lifecycle.
// Nodes are immutable once their graph is built.
type StageNode struct {
	ID   StageID   `json:"id" yaml:"id"`
	Name string    `json:"name,omitempty" yaml:"name,omitempty"`
	Type StageType `json:"type" yaml:"type"`

	// Order positions the stage in the lifecycle. Fractions express sub-stages (4.1, 4.2).
	Order float64 `json:"order" yaml:"order"`

	AssignedRole     Role     `json:"assigned_role,omitempty" yaml:"assigned_role,omitempty"`
	PermittedActions []Action `json:"permitted_actions,omitempty" yaml:"permitted_actions,omitempty"`

	IsParallelBranch bool    `json:"is_parallel_branch,omitempty" yaml:"is_parallel_branch,omitempty"`
	ParentStageID    StageID `json:"parent_stage_id,omitempty" yaml:"parent_stage_id,omitempty"`
}

// Permits reports whether the action may be performed in this stage.
func (s StageNode) Permits(a Action) bool {
	return slices.Contains(s.PermittedActions, a)
}
