package ports

import (
	"context"

	"github.com/aretw0/redline/pkg/domain"
)

// GraphLoader defines how the engine retrieves stage graphs.
// This allows the definition source (built-in, files, Loam) to be decoupled.
type GraphLoader interface {
	// LoadGraph returns the validated graph with the given ID.
	// Returns domain.ErrGraphNotFound if no such graph exists.
	LoadGraph(ctx context.Context, id string) (*domain.StageGraph, error)

	// ListGraphs returns the IDs of every available graph, sorted.
	ListGraphs(ctx context.Context) ([]string, error)
}

// IdentityResolver turns an actor token into an Actor.
// The engine performs no authentication itself; it trusts the resolved identity.
type IdentityResolver interface {
	// Resolve returns domain.ErrUnauthenticated for unknown tokens.
	Resolve(ctx context.Context, token string) (domain.Actor, error)
}
