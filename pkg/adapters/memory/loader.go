package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/redline/pkg/domain"
)

// Loader implements ports.GraphLoader using an in-memory map.
type Loader struct {
	graphs map[string]*domain.StageGraph
}

// NewLoader creates a Loader serving already validated graphs.
func NewLoader(graphs ...*domain.StageGraph) *Loader {
	m := make(map[string]*domain.StageGraph, len(graphs))
	for _, g := range graphs {
		m[g.ID] = g
	}
	return &Loader{graphs: m}
}

// NewFromDefinitions validates raw definitions and serves them.
// This improves DX for tests that build graphs by hand.
func NewFromDefinitions(defs ...domain.StageGraph) (*Loader, error) {
	graphs := make([]*domain.StageGraph, 0, len(defs))
	for _, d := range defs {
		g, err := domain.NewStageGraph(d)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return NewLoader(graphs...), nil
}

// LoadGraph returns the graph with the given ID.
func (l *Loader) LoadGraph(ctx context.Context, id string) (*domain.StageGraph, error) {
	g, ok := l.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, id)
	}
	return g, nil
}

// ListGraphs returns all available graph IDs.
func (l *Loader) ListGraphs(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(l.graphs))
	for k := range l.graphs {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys, nil
}
