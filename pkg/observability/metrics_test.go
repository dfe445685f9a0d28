package observability_test

import (
	"context"
	"testing"

	"github.com/aretw0/redline/internal/merge"
	"github.com/aretw0/redline/internal/workflow"
	"github.com/aretw0/redline/pkg/adapters/memory"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/graphs"
	"github.com/aretw0/redline/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Workflow(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	c := workflow.NewController(graphs.Loader(), memory.NewStore(), workflow.WithHooks(m.Hooks()))
	ctx := context.Background()

	inst, err := c.Start(ctx, graphs.LinearReviewID, "doc", domain.Actor{ID: "a", Role: domain.RoleAuthor})
	require.NoError(t, err)
	_, err = c.Advance(ctx, domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionSubmit, Actor: domain.Actor{ID: "a", Role: domain.RoleAuthor}})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues(graphs.LinearReviewID, "start", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues(graphs.LinearReviewID, "transition", "submit")))

	count, err := testutil.GatherAndCount(reg, "redline_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_Merge(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	store := memory.NewStore()
	e := merge.New(store, store, merge.WithHooks(m.Hooks()))
	ctx := context.Background()

	_, err := e.CreateDocument(ctx, "doc", "The maual is good.")
	require.NoError(t, err)
	item := func(text, repl string) *domain.FeedbackItem {
		return &domain.FeedbackItem{DocumentID: "doc", Anchor: domain.Anchor{Text: text}, Replacement: repl, BaseVersion: 1}
	}
	_, err = e.Propose(ctx, item("maual", "manual"))
	require.NoError(t, err)
	res, err := e.Propose(ctx, item("maual is good", "manual is excellent"))
	require.NoError(t, err)
	_, err = e.ResolveConflict(ctx, res.Conflicts[0].ID, domain.Decision{Resolution: domain.ResolutionRejectBoth}, domain.Actor{ID: "c"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Proposals.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Proposals.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conflicts.WithLabelValues("opened")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conflicts.WithLabelValues("resolved")))
}
