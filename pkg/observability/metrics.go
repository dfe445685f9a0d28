package observability

import (
	"context"

	"github.com/aretw0/redline/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the redline collectors.
type Metrics struct {
	// Transitions counts appended history records.
	// Labels: graph, kind (start, transition, fan_in, ...), action
	Transitions *prometheus.CounterVec
	// Proposals counts proposals by outcome.
	Proposals *prometheus.CounterVec
	// Conflicts counts conflicts opened and resolved.
	// Labels: event (opened, resolved)
	Conflicts *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redline",
			Name:      "transitions_total",
			Help:      "Workflow history records appended, by graph, kind and action",
		}, []string{"graph", "kind", "action"}),
		Proposals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redline",
			Name:      "proposals_total",
			Help:      "Feedback proposals by outcome",
		}, []string{"outcome"}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redline",
			Name:      "conflicts_total",
			Help:      "Feedback conflicts opened and resolved",
		}, []string{"event"}),
	}
}

// Hooks returns lifecycle callbacks that update the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, ev *domain.TransitionEvent) {
			m.Transitions.WithLabelValues(ev.GraphID, string(ev.Record.Kind), string(ev.Record.Action)).Inc()
		},
		OnProposal: func(ctx context.Context, ev *domain.ProposalEvent) {
			m.Proposals.WithLabelValues(string(ev.Outcome)).Inc()
		},
		OnConflict: func(ctx context.Context, ev *domain.ConflictEvent) {
			event := "opened"
			if ev.Conflict.Status == domain.ConflictResolved {
				event = "resolved"
			}
			m.Conflicts.WithLabelValues(event).Inc()
		},
	}
}
