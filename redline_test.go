package redline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/redline"
	"github.com/aretw0/redline/pkg/adapters/redis"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/graphs"
	"github.com/aretw0/redline/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	author      = domain.Actor{ID: "alice", Role: domain.RoleAuthor}
	gatekeeper  = domain.Actor{ID: "gina", Role: domain.RoleGatekeeper}
	coordinator = domain.Actor{ID: "cole", Role: domain.RoleCoordinator}
	technical   = domain.Actor{ID: "tara", Role: domain.RoleTechnicalReviewer}
	policy      = domain.Actor{ID: "pete", Role: domain.RolePolicyReviewer}
	security    = domain.Actor{ID: "sam", Role: domain.RoleSecurityReviewer}
)

func advance(t *testing.T, eng *redline.Engine, id string, action domain.Action, actor domain.Actor) *domain.AdvanceResult {
	t.Helper()
	res, err := eng.AdvanceWorkflow(context.Background(), domain.AdvanceRequest{InstanceID: id, Action: action, Actor: actor})
	require.NoError(t, err)
	return res
}

func TestEngine_ReviewWithFeedback(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	eng, err := redline.New(redline.WithLifecycleHooks(metrics.Hooks()))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = eng.CreateDocument(ctx, "manual", "The maual is good.")
	require.NoError(t, err)
	inst, err := eng.StartWorkflow(ctx, graphs.FormalReviewID, "manual", author)
	require.NoError(t, err)

	advance(t, eng, inst.ID, domain.ActionSubmit, author)
	advance(t, eng, inst.ID, domain.ActionApprove, gatekeeper)
	res := advance(t, eng, inst.ID, domain.ActionDistribute, coordinator)
	assert.Len(t, res.Instance.Active, 3)

	// Two reviewers read v1 and both fix the typo differently.
	a, err := eng.ProposeFeedback(ctx, &domain.FeedbackItem{
		DocumentID: "manual", BaseVersion: 1, AuthorRef: technical.ID,
		Anchor: domain.Anchor{Text: "maual"}, Replacement: "manual",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAccepted, a.Outcome)

	b, err := eng.ProposeFeedback(ctx, &domain.FeedbackItem{
		DocumentID: "manual", BaseVersion: 1, AuthorRef: policy.ID,
		Anchor: domain.Anchor{Text: "maual is"}, Replacement: "handbook is",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConflict, b.Outcome)
	require.Len(t, b.Conflicts, 1)

	open, err := eng.Conflicts(ctx, "manual", domain.ConflictOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)

	resolved, err := eng.ResolveConflict(ctx, open[0].ID, domain.Decision{Resolution: domain.ResolutionAcceptB}, coordinator)
	require.NoError(t, err)
	assert.Equal(t, domain.ConflictResolved, resolved.Conflict.Status)

	doc, err := eng.Document(ctx, "manual")
	require.NoError(t, err)
	assert.Equal(t, "The manual is good.", doc.Body)

	patch, err := eng.Patch(ctx, "manual", 2)
	require.NoError(t, err)
	assert.Contains(t, patch, "-The maual is good.")
	assert.Contains(t, patch, "+The manual is good.")

	advance(t, eng, inst.ID, domain.ActionCompleteReview, technical)
	advance(t, eng, inst.ID, domain.ActionCompleteReview, policy)
	last := advance(t, eng, inst.ID, domain.ActionCompleteReview, security)
	assert.True(t, last.FanIn)
	assert.Equal(t, graphs.Consolidation, last.Instance.CurrentStage())

	status, err := eng.WorkflowForDocument(ctx, "manual")
	require.NoError(t, err)
	assert.Equal(t, inst.ID, status.ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues(graphs.FormalReviewID, string(domain.RecordFanIn), string(domain.ActionCompleteReview))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Proposals.WithLabelValues(string(domain.OutcomeConflict))))
}

func TestEngine_DefaultsAndGraphs(t *testing.T) {
	eng, err := redline.New()
	require.NoError(t, err)
	ctx := context.Background()

	ids, err := eng.ListGraphs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{graphs.FormalReviewID, graphs.LinearReviewID}, ids)

	g, err := eng.Graph(ctx, graphs.LinearReviewID)
	require.NoError(t, err)
	assert.Equal(t, graphs.Draft, g.StartStageID)

	_, err = eng.Graph(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrGraphNotFound)
	assert.NotEmpty(t, redline.Version)
}

type brokenLoader struct{}

func (brokenLoader) LoadGraph(context.Context, string) (*domain.StageGraph, error) {
	return nil, errors.New("unreachable")
}

func (brokenLoader) ListGraphs(context.Context) ([]string, error) {
	return nil, errors.New("unreachable")
}

func TestEngine_BrokenLoader(t *testing.T) {
	_, err := redline.New(redline.WithLoader(brokenLoader{}))
	assert.Error(t, err)
}

func TestEngine_Clock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	eng, err := redline.New(redline.WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	inst, err := eng.StartWorkflow(context.Background(), graphs.LinearReviewID, "memo", author)
	require.NoError(t, err)
	assert.Equal(t, fixed, inst.CreatedAt)
	assert.Equal(t, fixed, inst.History[0].Timestamp)
}

// Two engines sharing one Redis behave as replicas of one service.
func TestEngine_RedisReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	newReplica := func() *redline.Engine {
		store := redis.New(mr.Addr(), "", 0)
		t.Cleanup(func() { _ = store.Close() })
		eng, err := redline.New(
			redline.WithStore(store),
			redline.WithDistributedLocker(redis.NewLocker(store.Client(), redis.DefaultPrefix), 5*time.Second),
		)
		require.NoError(t, err)
		return eng
	}
	r1, r2 := newReplica(), newReplica()
	ctx := context.Background()

	_, err := r1.CreateDocument(ctx, "manual", "The maual is good.")
	require.NoError(t, err)
	inst, err := r1.StartWorkflow(ctx, graphs.FormalReviewID, "manual", author)
	require.NoError(t, err)
	advance(t, r2, inst.ID, domain.ActionSubmit, author)
	advance(t, r1, inst.ID, domain.ActionApprove, gatekeeper)
	advance(t, r2, inst.ID, domain.ActionDistribute, coordinator)

	var wg sync.WaitGroup
	results := make(chan *domain.AdvanceResult, 3)
	for i, actor := range []domain.Actor{technical, policy, security} {
		eng := r1
		if i%2 == 1 {
			eng = r2
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := eng.AdvanceWorkflow(ctx, domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionCompleteReview, Actor: actor})
			if assert.NoError(t, err) {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	joins := 0
	for res := range results {
		if res.FanIn {
			joins++
		}
	}
	assert.Equal(t, 1, joins)

	final, err := r2.WorkflowStatus(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.StageID{graphs.Consolidation}, final.Active)

	var proposals sync.WaitGroup
	outcomes := make(chan domain.Outcome, 2)
	for i, repl := range []string{"manual", "manuel"} {
		eng := r1
		if i == 1 {
			eng = r2
		}
		proposals.Add(1)
		go func() {
			defer proposals.Done()
			res, err := eng.ProposeFeedback(ctx, &domain.FeedbackItem{
				DocumentID: "manual", BaseVersion: 1,
				Anchor: domain.Anchor{Text: "maual"}, Replacement: repl,
			})
			if assert.NoError(t, err) {
				outcomes <- res.Outcome
			}
		}()
	}
	proposals.Wait()
	close(outcomes)

	counts := map[domain.Outcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, map[domain.Outcome]int{domain.OutcomeAccepted: 1, domain.OutcomeConflict: 1}, counts)
}
