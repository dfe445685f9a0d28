package redline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/redline/internal/logging"
	"github.com/aretw0/redline/internal/merge"
	"github.com/aretw0/redline/internal/workflow"
	"github.com/aretw0/redline/pkg/adapters/memory"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/graphs"
	"github.com/aretw0/redline/pkg/keylock"
	"github.com/aretw0/redline/pkg/ports"
)

// Store is a backend that persists workflows, documents and feedback at once,
// like memory.Store and redis.Store.
type Store interface {
	ports.WorkflowStore
	ports.DocumentStore
	ports.FeedbackStore
}

// Engine is the high-level entry point for the redline library.
// It combines the workflow controller and the feedback merge engine over one
// set of stores and one keylock manager.
type Engine struct {
	workflows *workflow.Controller
	merge     *merge.Engine
	loader    ports.GraphLoader

	workflowStore ports.WorkflowStore
	docs          ports.DocumentStore
	feedback      ports.FeedbackStore

	locker  ports.DistributedLocker
	lockTTL time.Duration
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	now     func() time.Time
}

var _ ports.ReviewService = (*Engine)(nil)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLoader injects the source of stage graphs. Defaults to the built-in graphs.
func WithLoader(l ports.GraphLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithStore uses one backend for every kind of record.
func WithStore(s Store) Option {
	return func(e *Engine) {
		e.workflowStore = s
		e.docs = s
		e.feedback = s
	}
}

// WithWorkflowStore overrides where workflow instances are persisted.
func WithWorkflowStore(s ports.WorkflowStore) Option {
	return func(e *Engine) {
		e.workflowStore = s
	}
}

// WithDocumentStore overrides where document versions are persisted.
func WithDocumentStore(s ports.DocumentStore) Option {
	return func(e *Engine) {
		e.docs = s
	}
}

// WithFeedbackStore overrides where feedback and conflicts are persisted.
func WithFeedbackStore(s ports.FeedbackStore) Option {
	return func(e *Engine) {
		e.feedback = s
	}
}

// WithDistributedLocker coordinates replicas through locker, holding each lock for at most ttl.
// A zero ttl keeps the keylock default.
func WithDistributedLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = locker
		e.lockTTL = ttl
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source of both controllers.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New initializes an Engine. Without options it serves the built-in graphs
// from an in-memory store.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.loader == nil {
		e.loader = graphs.Loader()
	}
	if e.workflowStore == nil || e.docs == nil || e.feedback == nil {
		mem := memory.NewStore()
		if e.workflowStore == nil {
			e.workflowStore = mem
		}
		if e.docs == nil {
			e.docs = mem
		}
		if e.feedback == nil {
			e.feedback = mem
		}
	}

	lockOpts := []keylock.Option{keylock.WithLogger(e.logger)}
	if e.locker != nil {
		lockOpts = append(lockOpts, keylock.WithLocker(e.locker))
		if e.lockTTL > 0 {
			lockOpts = append(lockOpts, keylock.WithTTL(e.lockTTL))
		}
	}
	locks := keylock.New(lockOpts...)

	wfOpts := []workflow.Option{
		workflow.WithLogger(e.logger),
		workflow.WithLocks(locks),
		workflow.WithHooks(e.hooks),
	}
	mergeOpts := []merge.Option{
		merge.WithLogger(e.logger),
		merge.WithLocks(locks),
		merge.WithHooks(e.hooks),
	}
	if e.now != nil {
		wfOpts = append(wfOpts, workflow.WithClock(e.now))
		mergeOpts = append(mergeOpts, merge.WithClock(e.now))
	}

	e.workflows = workflow.NewController(e.loader, e.workflowStore, wfOpts...)
	e.merge = merge.New(e.docs, e.feedback, mergeOpts...)

	if _, err := e.loader.ListGraphs(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to list stage graphs: %w", err)
	}
	return e, nil
}

// Loader returns the graph loader in use.
func (e *Engine) Loader() ports.GraphLoader {
	return e.loader
}

// --- workflows ---

// StartWorkflow opens a review of documentID on graph graphID.
func (e *Engine) StartWorkflow(ctx context.Context, graphID, documentID string, actor domain.Actor) (*domain.WorkflowInstance, error) {
	return e.workflows.Start(ctx, graphID, documentID, actor)
}

// AdvanceWorkflow performs an action on an instance.
func (e *Engine) AdvanceWorkflow(ctx context.Context, req domain.AdvanceRequest) (*domain.AdvanceResult, error) {
	return e.workflows.Advance(ctx, req)
}

// ResetWorkflow sends an instance back to its start stage.
func (e *Engine) ResetWorkflow(ctx context.Context, instanceID string, actor domain.Actor, meta domain.RecordMetadata) (*domain.WorkflowInstance, error) {
	return e.workflows.Reset(ctx, instanceID, actor, meta)
}

// WorkflowStatus returns an instance with its full history.
func (e *Engine) WorkflowStatus(ctx context.Context, instanceID string) (*domain.WorkflowInstance, error) {
	return e.workflows.Status(ctx, instanceID)
}

// WorkflowForDocument returns the latest instance opened for a document.
func (e *Engine) WorkflowForDocument(ctx context.Context, documentID string) (*domain.WorkflowInstance, error) {
	return e.workflows.ForDocument(ctx, documentID)
}

// --- documents and feedback ---

// CreateDocument stores version 1 of a new document.
func (e *Engine) CreateDocument(ctx context.Context, documentID, body string) (*domain.DocumentVersion, error) {
	return e.merge.CreateDocument(ctx, documentID, body)
}

// Document returns the latest version of a document.
func (e *Engine) Document(ctx context.Context, documentID string) (*domain.DocumentVersion, error) {
	return e.merge.Document(ctx, documentID)
}

// Version returns one version of a document.
func (e *Engine) Version(ctx context.Context, documentID string, version int) (*domain.DocumentVersion, error) {
	return e.merge.Version(ctx, documentID, version)
}

// Patch returns the unified diff that produced version.
func (e *Engine) Patch(ctx context.Context, documentID string, version int) (string, error) {
	return e.merge.Patch(ctx, documentID, version)
}

// SubmitFeedback registers a pending item without applying it.
func (e *Engine) SubmitFeedback(ctx context.Context, item *domain.FeedbackItem) (*domain.FeedbackItem, error) {
	return e.merge.Submit(ctx, item)
}

// ProposeFeedback applies an edit to the current version of its document.
// Conflicts and stale anchors are reported in the result, not as errors.
func (e *Engine) ProposeFeedback(ctx context.Context, item *domain.FeedbackItem) (*domain.ProposeResult, error) {
	return e.merge.Propose(ctx, item)
}

// ProposePending proposes a previously submitted item.
func (e *Engine) ProposePending(ctx context.Context, documentID, feedbackID string) (*domain.ProposeResult, error) {
	return e.merge.ProposePending(ctx, documentID, feedbackID)
}

// ResolveConflict settles an open conflict.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, decision domain.Decision, actor domain.Actor) (*domain.ResolveResult, error) {
	return e.merge.ResolveConflict(ctx, conflictID, decision, actor)
}

// PendingFeedback returns the items of a document still waiting to be proposed.
func (e *Engine) PendingFeedback(ctx context.Context, documentID string) ([]*domain.FeedbackItem, error) {
	return e.merge.Pending(ctx, documentID)
}

// Feedback lists a document's items; an empty status lists all of them.
func (e *Engine) Feedback(ctx context.Context, documentID string, status domain.FeedbackStatus) ([]*domain.FeedbackItem, error) {
	return e.merge.Feedback(ctx, documentID, status)
}

// Conflicts lists a document's conflicts; an empty status lists all of them.
func (e *Engine) Conflicts(ctx context.Context, documentID string, status domain.ConflictStatus) ([]*domain.Conflict, error) {
	return e.merge.Conflicts(ctx, documentID, status)
}

// --- graphs ---

// ListGraphs returns every available graph ID.
func (e *Engine) ListGraphs(ctx context.Context) ([]string, error) {
	return e.loader.ListGraphs(ctx)
}

// Graph returns one stage graph.
func (e *Engine) Graph(ctx context.Context, id string) (*domain.StageGraph, error) {
	return e.loader.LoadGraph(ctx, id)
}
