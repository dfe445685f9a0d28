package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTransition EventType = "transition"
	EventProposal   EventType = "proposal"
	EventConflict   EventType = "conflict"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// TransitionEvent is emitted for every record appended to an instance history.
type TransitionEvent struct {
	EventBase
	InstanceID string           `json:"instance_id"`
	DocumentID string           `json:"document_id"`
	GraphID    string           `json:"graph_id"`
	Record     TransitionRecord `json:"record"`
	Status     WorkflowStatus   `json:"status"`
}

// ProposalEvent is emitted once per proposal with its outcome.
type ProposalEvent struct {
	EventBase
	DocumentID string  `json:"document_id"`
	FeedbackID string  `json:"feedback_id"`
	Outcome    Outcome `json:"outcome"`
	Version    int     `json:"version"`
}

// ConflictEvent is emitted when a conflict is opened or resolved.
type ConflictEvent struct {
	EventBase
	Conflict *Conflict `json:"conflict"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnTransition func(context.Context, *TransitionEvent)
	OnProposal   func(context.Context, *ProposalEvent)
	OnConflict   func(context.Context, *ConflictEvent)
}

// Merge combines two hook sets; both callbacks run when both are set.
func (h LifecycleHooks) Merge(o LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTransition: chain(h.OnTransition, o.OnTransition),
		OnProposal:   chain(h.OnProposal, o.OnProposal),
		OnConflict:   chain(h.OnConflict, o.OnConflict),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
