package dsl

import (
	"slices"

	"github.com/aretw0/redline/pkg/domain"
)

type edgeKind int

const (
	edgePlain edgeKind = iota
	edgeFork
	edgeJoin
)

type edge struct {
	kind   edgeKind
	action domain.Action
	target domain.StageID
}

// StageBuilder provides a fluent API for configuring a stage.
type StageBuilder struct {
	stage   domain.StageNode
	edges   []edge
	builder *Builder
}

// Name sets the display name.
func (s *StageBuilder) Name(name string) *StageBuilder {
	s.stage.Name = name
	return s
}

// Order positions the stage; fractions express sub-stages.
func (s *StageBuilder) Order(order float64) *StageBuilder {
	s.stage.Order = order
	return s
}

// Role assigns the responsible role.
func (s *StageBuilder) Role(r domain.Role) *StageBuilder {
	s.stage.AssignedRole = r
	return s
}

// Allow permits actions that do not necessarily move the document (e.g. comment).
func (s *StageBuilder) Allow(actions ...domain.Action) *StageBuilder {
	for _, a := range actions {
		if !slices.Contains(s.stage.PermittedActions, a) {
			s.stage.PermittedActions = append(s.stage.PermittedActions, a)
		}
	}
	return s
}

// On adds a transition to target triggered by action, permitting the action.
func (s *StageBuilder) On(action domain.Action, target domain.StageID) *StageBuilder {
	s.edges = append(s.edges, edge{kind: edgePlain, action: action, target: target})
	return s.Allow(action)
}

// Fork fans out to every branch of the parallel stage parent.
func (s *StageBuilder) Fork(action domain.Action, parent domain.StageID) *StageBuilder {
	s.edges = append(s.edges, edge{kind: edgeFork, action: action, target: parent})
	return s.Allow(action)
}

// Join declares the fan-in of a parallel stage: once every branch has
// performed action, the document moves to target. Build makes every branch
// permit action, including branches declared after the call.
func (s *StageBuilder) Join(action domain.Action, target domain.StageID) *StageBuilder {
	s.edges = append(s.edges, edge{kind: edgeJoin, action: action, target: target})
	return s
}

// Terminal marks the stage as the end of the flow.
func (s *StageBuilder) Terminal() *StageBuilder {
	s.stage.Type = domain.StageTypeTerminal
	s.edges = nil
	return s
}

// Build returns the underlying domain.StageNode.
// This is primarily used by the Builder, but exposed for advanced usage.
func (s *StageBuilder) Build() domain.StageNode {
	return s.stage
}
