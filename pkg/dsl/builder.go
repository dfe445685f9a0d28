package dsl

import (
	"fmt"

	"github.com/aretw0/redline/pkg/domain"
)

// Builder manages the graph construction.
type Builder struct {
	graph  domain.StageGraph
	stages map[domain.StageID]*StageBuilder
	order  []domain.StageID
	extra  []domain.Transition
}

// New creates a new graph builder.
func New(id string) *Builder {
	return &Builder{
		graph:  domain.StageGraph{ID: id},
		stages: make(map[domain.StageID]*StageBuilder),
	}
}

// Name sets the human readable graph name.
func (b *Builder) Name(name string) *Builder {
	b.graph.Name = name
	return b
}

// Describe sets the graph description.
func (b *Builder) Describe(text string) *Builder {
	b.graph.Description = text
	return b
}

// Start designates the initial stage.
func (b *Builder) Start(id domain.StageID) *Builder {
	b.graph.StartStageID = id
	return b
}

// Overrides lists the roles allowed to force transitions. Defaults to admin.
func (b *Builder) Overrides(roles ...domain.Role) *Builder {
	b.graph.OverrideRoles = append(b.graph.OverrideRoles, roles...)
	return b
}

// Stage adds a task stage. If the stage already exists, it returns the existing builder.
// The first stage added becomes the start stage unless Start is called.
func (b *Builder) Stage(id domain.StageID) *StageBuilder {
	return b.add(id, domain.StageTypeTask)
}

// Parallel adds the grouping parent of a set of branches.
func (b *Builder) Parallel(id domain.StageID) *StageBuilder {
	return b.add(id, domain.StageTypeParallel)
}

// Branch adds a parallel branch under parent.
func (b *Builder) Branch(parent, id domain.StageID) *StageBuilder {
	sb := b.add(id, domain.StageTypeBranch)
	sb.stage.IsParallelBranch = true
	sb.stage.ParentStageID = parent
	return sb
}

func (b *Builder) add(id domain.StageID, typ domain.StageType) *StageBuilder {
	if sb, ok := b.stages[id]; ok {
		return sb
	}
	sb := &StageBuilder{
		stage: domain.StageNode{
			ID:    id,
			Type:  typ,
			Order: float64(len(b.order) + 1),
		},
		builder: b,
	}
	b.stages[id] = sb
	b.order = append(b.order, id)
	if b.graph.StartStageID == "" && typ == domain.StageTypeTask {
		b.graph.StartStageID = id
	}
	return sb
}

// Transition adds an explicit edge. Each source stage is made to permit trigger.
func (b *Builder) Transition(from []domain.StageID, trigger domain.Action, to []domain.StageID) *Builder {
	b.extra = append(b.extra, domain.Transition{From: from, To: to, Trigger: trigger})
	return b
}

// children lists the branches declared under parent, in declaration order.
func (b *Builder) children(parent domain.StageID) []domain.StageID {
	var ids []domain.StageID
	for _, id := range b.order {
		if b.stages[id].stage.ParentStageID == parent {
			ids = append(ids, id)
		}
	}
	return ids
}

// Build validates the graph and returns it ready for use.
func (b *Builder) Build() (*domain.StageGraph, error) {
	g := b.graph
	g.Stages = make([]domain.StageNode, 0, len(b.order))
	g.Transitions = nil

	for _, id := range b.order {
		for _, e := range b.stages[id].edges {
			if e.kind != edgeJoin {
				continue
			}
			for _, child := range b.children(id) {
				b.stages[child].Allow(e.action)
			}
		}
	}

	for _, t := range b.extra {
		for _, id := range t.From {
			if sb, ok := b.stages[id]; ok {
				sb.Allow(t.Trigger)
			}
		}
	}

	for _, id := range b.order {
		sb := b.stages[id]
		g.Stages = append(g.Stages, sb.stage)
		for _, e := range sb.edges {
			t := domain.Transition{Trigger: e.action}
			switch e.kind {
			case edgePlain:
				t.From = []domain.StageID{id}
				t.To = []domain.StageID{e.target}
			case edgeFork:
				t.From = []domain.StageID{id}
				t.To = b.children(e.target)
			case edgeJoin:
				t.From = b.children(id)
				t.To = []domain.StageID{e.target}
			}
			g.Transitions = append(g.Transitions, t)
		}
	}

	g.Transitions = append(g.Transitions, b.extra...)

	graph, err := domain.NewStageGraph(g)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph %q: %w", b.graph.ID, err)
	}
	return graph, nil
}

// MustBuild is Build for graphs known to be valid at compile time.
func (b *Builder) MustBuild() *domain.StageGraph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
