package workflow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aretw0/redline/internal/workflow"
	"github.com/aretw0/redline/pkg/adapters/memory"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/dsl"
	"github.com/aretw0/redline/pkg/graphs"
	"github.com/aretw0/redline/pkg/keylock"
	"github.com/aretw0/redline/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	author      = domain.Actor{ID: "alice", Role: domain.RoleAuthor}
	gatekeeper  = domain.Actor{ID: "gary", Role: domain.RoleGatekeeper}
	coordinator = domain.Actor{ID: "cora", Role: domain.RoleCoordinator}
	technical   = domain.Actor{ID: "tess", Role: domain.RoleTechnicalReviewer}
	policy      = domain.Actor{ID: "pat", Role: domain.RolePolicyReviewer}
	security    = domain.Actor{ID: "sam", Role: domain.RoleSecurityReviewer}
	legal       = domain.Actor{ID: "lee", Role: domain.RoleLegal}
	leadership  = domain.Actor{ID: "lin", Role: domain.RoleLeadership}
	admin       = domain.Actor{ID: "root", Role: domain.RoleAdmin}
)

func newController(t *testing.T, opts ...workflow.Option) (*workflow.Controller, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return workflow.NewController(graphs.Loader(), store, opts...), store
}

func advance(t *testing.T, c *workflow.Controller, id string, action domain.Action, actor domain.Actor) *domain.AdvanceResult {
	t.Helper()
	res, err := c.Advance(context.Background(), domain.AdvanceRequest{InstanceID: id, Action: action, Actor: actor})
	require.NoError(t, err, "%s by %s", action, actor.ID)
	return res
}

// toParallelReview drives a fresh formal-review instance up to its fan-out.
func toParallelReview(t *testing.T, c *workflow.Controller) *domain.WorkflowInstance {
	t.Helper()
	inst, err := c.Start(context.Background(), graphs.FormalReviewID, "doc-1", author)
	require.NoError(t, err)
	advance(t, c, inst.ID, domain.ActionSubmit, author)
	advance(t, c, inst.ID, domain.ActionApprove, gatekeeper)
	res := advance(t, c, inst.ID, domain.ActionDistribute, coordinator)
	return res.Instance
}

func kinds(inst *domain.WorkflowInstance) []domain.RecordKind {
	out := make([]domain.RecordKind, len(inst.History))
	for i, r := range inst.History {
		out[i] = r.Kind
	}
	return out
}

func TestController_FormalReviewLifecycle(t *testing.T) {
	c, _ := newController(t)
	inst := toParallelReview(t, c)

	assert.Equal(t, graphs.ParallelReview, inst.ParentStageID)
	assert.ElementsMatch(t, []domain.StageID{graphs.TechnicalReview, graphs.PolicyReview, graphs.SecurityReview}, inst.Active)
	assert.Equal(t, graphs.ParallelReview, inst.CurrentStage())

	// Branch stages are inferred from the reviewer's role.
	r := advance(t, c, inst.ID, domain.ActionCompleteReview, technical)
	assert.False(t, r.FanIn)
	r = advance(t, c, inst.ID, domain.ActionCompleteReview, policy)
	assert.False(t, r.FanIn)
	assert.Equal(t, []domain.StageID{graphs.SecurityReview}, r.Instance.PendingBranches())

	r = advance(t, c, inst.ID, domain.ActionCompleteReview, security)
	assert.True(t, r.FanIn)
	require.Len(t, r.Records, 2)
	assert.Equal(t, domain.RecordBranchComplete, r.Records[0].Kind)
	assert.Equal(t, domain.RecordFanIn, r.Records[1].Kind)
	assert.Equal(t, []domain.StageID{graphs.Consolidation}, r.Instance.Active)
	assert.Empty(t, r.Instance.ParentStageID)
	assert.Empty(t, r.Instance.Branches)

	advance(t, c, inst.ID, domain.ActionConsolidate, coordinator)
	advance(t, c, inst.ID, domain.ActionApprove, legal)
	r = advance(t, c, inst.ID, domain.ActionApprove, leadership)
	assert.Equal(t, domain.StatusCompleted, r.Instance.Status)
	assert.Equal(t, []domain.StageID{graphs.Publication}, r.Instance.Active)

	assert.Equal(t, []domain.RecordKind{
		domain.RecordStart,
		domain.RecordTransition, domain.RecordTransition, domain.RecordTransition,
		domain.RecordBranchComplete, domain.RecordBranchComplete, domain.RecordBranchComplete,
		domain.RecordFanIn,
		domain.RecordTransition, domain.RecordTransition, domain.RecordTransition,
	}, kinds(r.Instance))
	for i, rec := range r.Instance.History {
		assert.Equal(t, i+1, rec.Sequence)
	}

	_, err := c.Advance(context.Background(), domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionComment, Actor: admin})
	assert.ErrorIs(t, err, domain.ErrWorkflowCompleted)
}

func TestController_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("Wrong Role", func(t *testing.T) {
		c, _ := newController(t)
		inst, err := c.Start(ctx, graphs.FormalReviewID, "doc", author)
		require.NoError(t, err)

		_, err = c.Advance(ctx, domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionSubmit, Actor: technical})
		assert.ErrorIs(t, err, domain.ErrWrongRole)
		var rej *domain.RejectionError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, graphs.Draft, rej.Stage)
		assert.Equal(t, domain.RoleTechnicalReviewer, rej.Role)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Action Not Permitted", func(t *testing.T) {
		c, _ := newController(t)
		inst, err := c.Start(ctx, graphs.FormalReviewID, "doc", author)
		require.NoError(t, err)

		_, err = c.Advance(ctx, domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionApprove, Actor: author})
		assert.ErrorIs(t, err, domain.ErrActionNotPermitted)
	})

	t.Run("Unknown Action", func(t *testing.T) {
		c, _ := newController(t)
		_, err := c.Advance(ctx, domain.AdvanceRequest{InstanceID: "x", Action: "publish", Actor: author})
		assert.ErrorIs(t, err, domain.ErrInvalidAction)
	})

	t.Run("Unknown Instance", func(t *testing.T) {
		c, _ := newController(t)
		_, err := c.Advance(ctx, domain.AdvanceRequest{InstanceID: "missing", Action: domain.ActionSubmit, Actor: author})
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	})

	t.Run("No Such Transition", func(t *testing.T) {
		b := dsl.New("tiny")
		b.Stage("write").Role(domain.RoleAuthor).
			Allow(domain.ActionConsolidate).
			On(domain.ActionSubmit, "done")
		b.Stage("done").Role(domain.RolePublisher).Terminal()
		loader := memory.NewLoader(b.MustBuild())
		c := workflow.NewController(loader, memory.NewStore())

		inst, err := c.Start(ctx, "tiny", "doc", author)
		require.NoError(t, err)
		_, err = c.Advance(ctx, domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionConsolidate, Actor: author})
		assert.ErrorIs(t, err, domain.ErrNoSuchTransition)
	})

	t.Run("Stage Selection During Fan-Out", func(t *testing.T) {
		c, _ := newController(t)
		inst := toParallelReview(t, c)

		_, err := c.Advance(ctx, domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionComment, Actor: coordinator})
		assert.ErrorIs(t, err, domain.ErrAmbiguousStage)

		_, err = c.Advance(ctx, domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionComment, Actor: coordinator, StageID: graphs.Draft})
		assert.ErrorIs(t, err, domain.ErrStageNotActive)

		advance(t, c, inst.ID, domain.ActionCompleteReview, technical)
		_, err = c.Advance(ctx, domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionCompleteReview, Actor: technical, StageID: graphs.TechnicalReview})
		assert.ErrorIs(t, err, domain.ErrBranchComplete)

		// The only remaining technical branch is complete, so nothing matches the role.
		_, err = c.Advance(ctx, domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionComment, Actor: technical})
		assert.ErrorIs(t, err, domain.ErrAmbiguousStage)
	})
}

func TestController_Override(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t)
	inst, err := c.Start(ctx, graphs.FormalReviewID, "doc", author)
	require.NoError(t, err)
	advance(t, c, inst.ID, domain.ActionSubmit, author)

	_, err = c.Advance(ctx, domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionApprove, Actor: admin})
	assert.ErrorIs(t, err, domain.ErrJustificationRequired)

	res, err := c.Advance(ctx, domain.AdvanceRequest{
		InstanceID: inst.ID,
		Action:     domain.ActionApprove,
		Actor:      admin,
		Metadata:   domain.RecordMetadata{Justification: "gatekeeper on leave"},
	})
	require.NoError(t, err)
	rec := res.Records[0]
	assert.True(t, rec.Override)
	assert.Equal(t, domain.RoleAdmin, rec.ActingRole)
	assert.Equal(t, "gatekeeper on leave", rec.Metadata.Justification)
	assert.Equal(t, []domain.StageID{graphs.Coordination}, res.Instance.Active)
}

func TestController_CommentKeepsStage(t *testing.T) {
	c, _ := newController(t)
	inst, err := c.Start(context.Background(), graphs.FormalReviewID, "doc", author)
	require.NoError(t, err)

	res, err := c.Advance(context.Background(), domain.AdvanceRequest{
		InstanceID: inst.ID,
		Action:     domain.ActionComment,
		Actor:      author,
		Metadata:   domain.RecordMetadata{Comment: "first pass done"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RecordComment, res.Records[0].Kind)
	assert.Equal(t, []domain.StageID{graphs.Draft}, res.Instance.Active)
	assert.Len(t, res.Instance.History, 2)
}

func TestController_ResetAndRestart(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t)
	inst := toParallelReview(t, c)
	advance(t, c, inst.ID, domain.ActionCompleteReview, technical)

	before, err := c.Status(ctx, inst.ID)
	require.NoError(t, err)

	reset, err := c.Reset(ctx, inst.ID, coordinator, domain.RecordMetadata{Comment: "scope changed"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReset, reset.Status)
	assert.Equal(t, []domain.StageID{graphs.Draft}, reset.Active)
	assert.Empty(t, reset.Branches)
	assert.Empty(t, reset.ParentStageID)
	require.Len(t, reset.History, len(before.History)+1)
	assert.Equal(t, before.History, reset.History[:len(before.History)], "history never shrinks")
	assert.Equal(t, domain.RecordReset, reset.History[len(reset.History)-1].Kind)

	// Starting again reactivates the same instance.
	again, err := c.Start(ctx, graphs.FormalReviewID, "doc-1", author)
	require.NoError(t, err)
	assert.Equal(t, inst.ID, again.ID)
	assert.Equal(t, domain.StatusActive, again.Status)
	assert.Equal(t, domain.RecordRestart, again.History[len(again.History)-1].Kind)

	_, err = c.Start(ctx, graphs.FormalReviewID, "doc-1", author)
	assert.ErrorIs(t, err, domain.ErrWorkflowActive)
}

func TestController_AdvanceReactivatesReset(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t)
	inst, err := c.Start(ctx, graphs.LinearReviewID, "doc", author)
	require.NoError(t, err)
	advance(t, c, inst.ID, domain.ActionSubmit, author)

	_, err = c.Reset(ctx, inst.ID, gatekeeper, domain.RecordMetadata{})
	require.NoError(t, err)

	res := advance(t, c, inst.ID, domain.ActionSubmit, author)
	assert.Equal(t, domain.StatusActive, res.Instance.Status)
	assert.Equal(t, []domain.StageID{graphs.GatekeeperReview}, res.Instance.Active)
}

func TestController_ResetInstanceSupersededByNewerStart(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t)
	old, err := c.Start(ctx, graphs.FormalReviewID, "doc", author)
	require.NoError(t, err)
	_, err = c.Reset(ctx, old.ID, gatekeeper, domain.RecordMetadata{})
	require.NoError(t, err)

	next, err := c.Start(ctx, graphs.LinearReviewID, "doc", author)
	require.NoError(t, err)
	require.NotEqual(t, old.ID, next.ID)

	_, err = c.Advance(ctx, domain.AdvanceRequest{InstanceID: old.ID, Action: domain.ActionSubmit, Actor: author})
	assert.ErrorIs(t, err, domain.ErrWorkflowSuperseded)
	assert.True(t, domain.IsValidation(err))

	cur, err := c.Status(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReset, cur.Status)

	latest, err := c.ForDocument(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, next.ID, latest.ID)
	assert.Equal(t, domain.StatusActive, latest.Status)
}

func TestController_BranchLoops(t *testing.T) {
	sibling := dsl.New("sibling")
	sibling.Stage("coord").Role(domain.RoleCoordinator).Fork(domain.ActionDistribute, "p")
	sibling.Parallel("p").Join(domain.ActionCompleteReview, "done")
	sibling.Branch("p", "p.a").Role(domain.RoleLegal).Allow(domain.ActionComment).On(domain.ActionComment, "p.b")
	sibling.Branch("p", "p.b").Role(domain.RolePolicyReviewer)
	sibling.Stage("done").Terminal()
	_, err := sibling.Build()
	assert.ErrorIs(t, err, domain.ErrInvalidGraph, "a branch may not move onto a sibling")

	loop := dsl.New("loop")
	loop.Stage("coord").Role(domain.RoleCoordinator).Fork(domain.ActionDistribute, "p")
	loop.Parallel("p").Join(domain.ActionCompleteReview, "done")
	loop.Branch("p", "p.a").Role(domain.RoleLegal).Allow(domain.ActionComment).On(domain.ActionComment, "p.a")
	loop.Branch("p", "p.b").Role(domain.RolePolicyReviewer)
	loop.Stage("done").Terminal()
	g, err := loop.Build()
	require.NoError(t, err)

	ctx := context.Background()
	c := workflow.NewController(memory.NewLoader(g), memory.NewStore())
	inst, err := c.Start(ctx, "loop", "doc", coordinator)
	require.NoError(t, err)
	advance(t, c, inst.ID, domain.ActionDistribute, coordinator)

	res := advance(t, c, inst.ID, domain.ActionComment, legal)
	assert.ElementsMatch(t, []domain.StageID{"p.a", "p.b"}, res.Instance.Active)
	assert.Len(t, res.Instance.Branches, 2)

	advance(t, c, inst.ID, domain.ActionCompleteReview, legal)
	res = advance(t, c, inst.ID, domain.ActionCompleteReview, policy)
	assert.True(t, res.FanIn)
	assert.Equal(t, domain.StatusCompleted, res.Instance.Status)
}

func TestController_CompletedWorkflows(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t)
	inst, err := c.Start(ctx, graphs.LinearReviewID, "doc", author)
	require.NoError(t, err)
	advance(t, c, inst.ID, domain.ActionSubmit, author)
	advance(t, c, inst.ID, domain.ActionApprove, gatekeeper)
	res := advance(t, c, inst.ID, domain.ActionApprove, leadership)
	require.Equal(t, domain.StatusCompleted, res.Instance.Status)

	_, err = c.Reset(ctx, inst.ID, admin, domain.RecordMetadata{})
	assert.ErrorIs(t, err, domain.ErrWorkflowCompleted)

	next, err := c.Start(ctx, graphs.LinearReviewID, "doc", author)
	require.NoError(t, err)
	assert.NotEqual(t, inst.ID, next.ID)

	latest, err := c.ForDocument(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, next.ID, latest.ID)
}

func TestController_StartValidation(t *testing.T) {
	c, _ := newController(t)
	_, err := c.Start(context.Background(), "no-such-graph", "doc", author)
	assert.ErrorIs(t, err, domain.ErrGraphNotFound)

	_, err = c.Start(context.Background(), graphs.FormalReviewID, "", author)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func countFanIns(inst *domain.WorkflowInstance) int {
	n := 0
	for _, r := range inst.History {
		if r.Kind == domain.RecordFanIn {
			n++
		}
	}
	return n
}

func TestController_ConcurrentBranchCompletion(t *testing.T) {
	for i := 0; i < 20; i++ {
		c, _ := newController(t)
		inst := toParallelReview(t, c)

		var wg sync.WaitGroup
		var fanIns atomic.Int32
		for _, actor := range []domain.Actor{technical, policy, security} {
			wg.Add(1)
			go func(actor domain.Actor) {
				defer wg.Done()
				res, err := c.Advance(context.Background(), domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionCompleteReview, Actor: actor})
				if assert.NoError(t, err) && res.FanIn {
					fanIns.Add(1)
				}
			}(actor)
		}
		wg.Wait()

		final, err := c.Status(context.Background(), inst.ID)
		require.NoError(t, err)
		assert.Equal(t, int32(1), fanIns.Load())
		assert.Equal(t, 1, countFanIns(final))
		assert.Equal(t, []domain.StageID{graphs.Consolidation}, final.Active)
	}
}

func TestController_ReplicasJoinOnce(t *testing.T) {
	store := memory.NewStore()
	loader := graphs.Loader()
	primary := workflow.NewController(loader, store, workflow.WithLocks(keylock.New()))
	replica := workflow.NewController(loader, store, workflow.WithLocks(keylock.New()))
	inst := toParallelReview(t, primary)

	var wg sync.WaitGroup
	for i, actor := range []domain.Actor{technical, policy, security} {
		c := primary
		if i%2 == 1 {
			c = replica
		}
		wg.Add(1)
		go func(c *workflow.Controller, actor domain.Actor) {
			defer wg.Done()
			for {
				_, err := c.Advance(context.Background(), domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionCompleteReview, Actor: actor})
				if errors.Is(err, domain.ErrContention) {
					continue
				}
				assert.NoError(t, err)
				return
			}
		}(c, actor)
	}
	wg.Wait()

	final, err := primary.Status(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, countFanIns(final))
	assert.Equal(t, []domain.StageID{graphs.Consolidation}, final.Active)
}

// staleStore loses the revision CAS a fixed number of times.
type staleStore struct {
	ports.WorkflowStore
	failures atomic.Int32
}

func (s *staleStore) Save(ctx context.Context, inst *domain.WorkflowInstance, expected int64) error {
	if expected > 0 && s.failures.Add(-1) >= 0 {
		return domain.ErrStaleRevision
	}
	return s.WorkflowStore.Save(ctx, inst, expected)
}

func TestController_RetriesOnceThenContention(t *testing.T) {
	ctx := context.Background()
	store := &staleStore{WorkflowStore: memory.NewStore()}
	c := workflow.NewController(graphs.Loader(), store)
	inst, err := c.Start(ctx, graphs.LinearReviewID, "doc", author)
	require.NoError(t, err)

	store.failures.Store(1)
	_, err = c.Advance(ctx, domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionSubmit, Actor: author})
	require.NoError(t, err)

	store.failures.Store(2)
	_, err = c.Advance(ctx, domain.AdvanceRequest{InstanceID: inst.ID, Action: domain.ActionApprove, Actor: gatekeeper})
	assert.ErrorIs(t, err, domain.ErrContention)
	assert.False(t, domain.IsValidation(err))

	cur, err := c.Status(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.StageID{graphs.GatekeeperReview}, cur.Active)
}

func TestController_Hooks(t *testing.T) {
	var mu sync.Mutex
	var seen []domain.RecordKind
	hooks := domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, ev *domain.TransitionEvent) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, ev.Record.Kind)
			assert.Equal(t, "doc-1", ev.DocumentID)
			assert.Equal(t, graphs.FormalReviewID, ev.GraphID)
		},
	}
	c, _ := newController(t, workflow.WithHooks(hooks))
	inst := toParallelReview(t, c)
	advance(t, c, inst.ID, domain.ActionCompleteReview, technical)
	advance(t, c, inst.ID, domain.ActionCompleteReview, policy)
	advance(t, c, inst.ID, domain.ActionCompleteReview, security)

	final, err := c.Status(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, kinds(final), seen, "one event per appended record, in order")
}
