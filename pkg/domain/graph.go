package domain

import (
	"fmt"
	"slices"
	"sort"
)

// StageGraph is the immutable review topology for one workflow type.
// It is safe to share across goroutines once built by NewStageGraph.
type StageGraph struct {
	ID            string       `json:"id"`
	Name          string       `json:"name,omitempty"`
	Description   string       `json:"description,omitempty"`
	StartStageID  StageID      `json:"start_stage_id"`
	Stages        []StageNode  `json:"stages"`
	Transitions   []Transition `json:"transitions"`
	OverrideRoles []Role       `json:"override_roles,omitempty"`

	index    map[StageID]int
	children map[StageID][]StageID
}

// NewStageGraph validates the definition and returns a ready-to-use graph.
// All problems are reported at once in a *GraphError.
func NewStageGraph(g StageGraph) (*StageGraph, error) {
	graph := g
	graph.Stages = slices.Clone(g.Stages)
	graph.Transitions = slices.Clone(g.Transitions)
	if len(graph.OverrideRoles) == 0 {
		graph.OverrideRoles = []Role{RoleAdmin}
	}
	sort.SliceStable(graph.Stages, func(i, j int) bool {
		return graph.Stages[i].Order < graph.Stages[j].Order
	})

	graph.index = make(map[StageID]int, len(graph.Stages))
	graph.children = make(map[StageID][]StageID)

	errs := &GraphError{GraphID: graph.ID}
	if graph.ID == "" {
		errs.add("graph id is required")
	}
	for i, s := range graph.Stages {
		if s.ID == "" {
			errs.add("stage at position %d has no id", i)
			continue
		}
		if _, dup := graph.index[s.ID]; dup {
			errs.add("stage %q is defined twice", s.ID)
			continue
		}
		graph.index[s.ID] = i
	}
	for _, s := range graph.Stages {
		graph.checkStage(s, errs)
		if s.ParentStageID != "" {
			graph.children[s.ParentStageID] = append(graph.children[s.ParentStageID], s.ID)
		}
	}
	graph.checkStart(errs)

	seen := make(map[string]bool)
	fanIns := make(map[StageID]int)
	for i, t := range graph.Transitions {
		graph.checkTransition(i, t, errs, fanIns)
		key := t.fromKey()
		if seen[key] {
			errs.add("transition %d: duplicate edge for %v on %q", i, t.From, t.Trigger)
		}
		seen[key] = true
	}
	for parent := range graph.children {
		if fanIns[parent] != 1 {
			errs.add("parallel stage %q needs exactly one fan-in transition, found %d", parent, fanIns[parent])
		}
	}
	if len(errs.Problems) == 0 {
		graph.checkReachability(errs)
	}

	if len(errs.Problems) > 0 {
		return nil, errs
	}
	return &graph, nil
}

func (g *StageGraph) checkStage(s StageNode, errs *GraphError) {
	if !s.Type.Valid() {
		errs.add("stage %q has invalid type %q", s.ID, s.Type)
	}
	for _, a := range s.PermittedActions {
		if !a.Valid() {
			errs.add("stage %q permits unknown action %q", s.ID, a)
		}
	}
	branch := s.Type == StageTypeBranch
	if branch != s.IsParallelBranch {
		errs.add("stage %q: branch type and is_parallel_branch disagree", s.ID)
	}
	if branch != (s.ParentStageID != "") {
		errs.add("stage %q: only branch stages have a parent", s.ID)
	}
	if s.ParentStageID != "" {
		p, ok := g.Stage(s.ParentStageID)
		switch {
		case !ok:
			errs.add("stage %q references missing parent %q", s.ID, s.ParentStageID)
		case p.Type != StageTypeParallel:
			errs.add("stage %q: parent %q is not a parallel stage", s.ID, s.ParentStageID)
		}
	}
	if s.Type != StageTypeParallel && s.Type != StageTypeTerminal && s.AssignedRole == "" {
		errs.add("stage %q has no assigned role", s.ID)
	}
}

func (g *StageGraph) checkStart(errs *GraphError) {
	start, ok := g.Stage(g.StartStageID)
	if !ok {
		errs.add("start stage %q does not exist", g.StartStageID)
		return
	}
	if start.Type != StageTypeTask {
		errs.add("start stage %q must be a task stage", start.ID)
	}
}

func (g *StageGraph) checkTransition(i int, t Transition, errs *GraphError, fanIns map[StageID]int) {
	if len(t.From) == 0 || len(t.To) == 0 {
		errs.add("transition %d needs at least one source and one target", i)
		return
	}
	if !t.Trigger.Valid() {
		errs.add("transition %d has unknown trigger %q", i, t.Trigger)
	}
	var from, to []StageNode
	for _, id := range t.From {
		s, ok := g.Stage(id)
		if !ok {
			errs.add("transition %d references missing source %q", i, id)
			return
		}
		if !s.Permits(t.Trigger) {
			errs.add("transition %d: stage %q does not permit %q", i, id, t.Trigger)
		}
		if s.Type == StageTypeParallel || s.Type == StageTypeTerminal {
			errs.add("transition %d: %s stage %q cannot be a source", i, s.Type, id)
		}
		from = append(from, s)
	}
	for _, id := range t.To {
		s, ok := g.Stage(id)
		if !ok {
			errs.add("transition %d references missing target %q", i, id)
			return
		}
		if s.Type == StageTypeParallel {
			errs.add("transition %d: parallel stage %q cannot be entered directly", i, id)
		}
		to = append(to, s)
	}

	fromBranch := from[0].IsParallelBranch
	toBranch := to[0].IsParallelBranch
	for _, s := range from[1:] {
		if s.IsParallelBranch != fromBranch || s.ParentStageID != from[0].ParentStageID {
			errs.add("transition %d: sources must share one parent", i)
			return
		}
	}
	for _, s := range to[1:] {
		if s.IsParallelBranch != toBranch || s.ParentStageID != to[0].ParentStageID {
			errs.add("transition %d: targets must share one parent", i)
			return
		}
	}

	switch {
	case fromBranch && !toBranch:
		parent := from[0].ParentStageID
		if !sameStages(t.From, g.Children(parent)) {
			errs.add("transition %d: fan-in from %q must list every branch", i, parent)
		}
		if len(t.To) != 1 {
			errs.add("transition %d: fan-in must have a single target", i)
		}
		fanIns[parent]++
	case !fromBranch && toBranch:
		if len(t.From) != 1 {
			errs.add("transition %d: fan-out must have a single source", i)
		}
		parent := to[0].ParentStageID
		if !sameStages(t.To, g.Children(parent)) {
			errs.add("transition %d: fan-out to %q must list every branch", i, parent)
		}
	case fromBranch && toBranch:
		// Every sibling is active during a fan-out, so moving onto one would
		// leave two branches on the same stage.
		if len(t.From) != 1 || len(t.To) != 1 || t.From[0] != t.To[0] {
			errs.add("transition %d: branch transitions must stay on their branch", i)
		}
	default:
		if len(t.From) != 1 || len(t.To) != 1 {
			errs.add("transition %d: plain transitions have one source and one target", i)
		}
	}
}

// checkReachability crawls the graph from the start stage and reports
// unreachable stages and missing sinks.
func (g *StageGraph) checkReachability(errs *GraphError) {
	visited := map[StageID]bool{}
	queue := []StageID{g.StartStageID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		if s, _ := g.Stage(id); s.IsParallelBranch {
			visited[s.ParentStageID] = true
		}
		for _, t := range g.Transitions {
			if t.HasSource(id) {
				queue = append(queue, t.To...)
			}
		}
	}

	terminal := false
	for _, s := range g.Stages {
		if !visited[s.ID] {
			errs.add("stage %q is unreachable from %q", s.ID, g.StartStageID)
		}
		if g.IsTerminal(s.ID) {
			terminal = true
		}
	}
	if !terminal {
		errs.add("graph has no terminal stage")
	}
}

// Stage returns the stage with the given ID.
func (g *StageGraph) Stage(id StageID) (StageNode, bool) {
	i, ok := g.index[id]
	if !ok {
		return StageNode{}, false
	}
	return g.Stages[i], true
}

// Children returns the branch stages under a parallel parent, in graph order.
func (g *StageGraph) Children(parent StageID) []StageID {
	return slices.Clone(g.children[parent])
}

// Outgoing returns the single-source transition leaving id on the given action.
func (g *StageGraph) Outgoing(id StageID, action Action) (Transition, bool) {
	for _, t := range g.Transitions {
		if len(t.From) == 1 && t.From[0] == id && t.Trigger == action {
			return t, true
		}
	}
	return Transition{}, false
}

// FanIn returns the transition that joins the branches of parent.
func (g *StageGraph) FanIn(parent StageID) (Transition, bool) {
	children := g.children[parent]
	if len(children) == 0 {
		return Transition{}, false
	}
	for _, t := range g.Transitions {
		if sameStages(t.From, children) {
			if s, ok := g.Stage(t.To[0]); ok && !s.IsParallelBranch {
				return t, true
			}
		}
	}
	return Transition{}, false
}

// IsTerminal reports whether no transition leaves the stage.
func (g *StageGraph) IsTerminal(id StageID) bool {
	s, ok := g.Stage(id)
	if !ok || s.Type == StageTypeParallel {
		return false
	}
	for _, t := range g.Transitions {
		if t.HasSource(id) {
			return false
		}
	}
	return true
}

// CanOverride reports whether the role may bypass stage role assignments.
func (g *StageGraph) CanOverride(r Role) bool {
	return slices.Contains(g.OverrideRoles, r)
}

// GraphError aggregates every problem found while validating a graph.
type GraphError struct {
	GraphID  string
	Problems []string
}

func (e *GraphError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *GraphError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid graph %q: %s", e.GraphID, e.Problems[0])
	}
	msg := fmt.Sprintf("invalid graph %q: %d problems:\n", e.GraphID, len(e.Problems))
	for i, p := range e.Problems {
		msg += fmt.Sprintf("  %d. %s\n", i+1, p)
	}
	return msg
}

// Unwrap lets errors.Is match ErrInvalidGraph.
func (e *GraphError) Unwrap() error {
	return ErrInvalidGraph
}
