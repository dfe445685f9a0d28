package memory

import (
	"context"

	"github.com/aretw0/redline/pkg/domain"
)

// Identities implements ports.IdentityResolver with a static token table.
type Identities struct {
	actors map[string]domain.Actor
}

// NewIdentities creates a resolver from token -> actor pairs.
func NewIdentities(actors map[string]domain.Actor) *Identities {
	m := make(map[string]domain.Actor, len(actors))
	for token, a := range actors {
		m[token] = a
	}
	return &Identities{actors: m}
}

// Resolve returns the actor registered for token.
func (i *Identities) Resolve(ctx context.Context, token string) (domain.Actor, error) {
	a, ok := i.actors[token]
	if !ok || token == "" {
		return domain.Actor{}, domain.ErrUnauthenticated
	}
	return a, nil
}
