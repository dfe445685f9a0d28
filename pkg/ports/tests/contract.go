package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/ports"
)

// GraphLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.GraphLoader.
// expected lists the graph IDs the loader must serve.
func GraphLoaderContractTest(t *testing.T, loader ports.GraphLoader, expected []string) {
	t.Helper()
	ctx := context.Background()

	// 1. LoadGraph (Success)
	t.Run("LoadGraph_Success", func(t *testing.T) {
		for _, id := range expected {
			g, err := loader.LoadGraph(ctx, id)
			if err != nil {
				t.Fatalf("unexpected error loading graph %s: %v", id, err)
			}
			if g.ID != id {
				t.Errorf("graph id mismatch: got %q, want %q", g.ID, id)
			}
			if _, ok := g.Stage(g.StartStageID); !ok {
				t.Errorf("graph %s: start stage %q is not indexed", id, g.StartStageID)
			}
		}
	})

	// 2. LoadGraph (NotFound)
	t.Run("LoadGraph_NotFound", func(t *testing.T) {
		_, err := loader.LoadGraph(ctx, "non-existent-graph")
		if !errors.Is(err, domain.ErrGraphNotFound) {
			t.Errorf("expected ErrGraphNotFound, got %v", err)
		}
	})

	// 3. ListGraphs
	t.Run("ListGraphs", func(t *testing.T) {
		ids, err := loader.ListGraphs(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing graphs: %v", err)
		}
		if len(ids) != len(expected) {
			t.Errorf("expected %d graphs, got %d", len(expected), len(ids))
		}

		lookup := make(map[string]bool)
		for _, id := range ids {
			lookup[id] = true
		}
		for _, id := range expected {
			if !lookup[id] {
				t.Errorf("graph %s missing from list", id)
			}
		}
	})
}
