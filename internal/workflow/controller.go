// Package workflow moves workflow instances through their stage graphs.
//
// Every mutation loads the instance, applies the change to a clone and saves
// it with the loaded revision as CAS token, all inside a per-instance keylock
// section. A lost CAS is retried once against a fresh read.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/redline/internal/logging"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/keylock"
	"github.com/aretw0/redline/pkg/ports"
	"github.com/google/uuid"
)

// Controller is the workflow instance controller.
type Controller struct {
	graphs ports.GraphLoader
	store  ports.WorkflowStore
	locks  *keylock.Manager
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures the Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithLocks shares a keylock manager with the controller.
func WithLocks(m *keylock.Manager) Option {
	return func(c *Controller) {
		c.locks = m
	}
}

// WithHooks registers lifecycle callbacks; OnTransition fires once per appended record.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(c *Controller) {
		c.hooks = c.hooks.Merge(h)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithIDGenerator overrides how instance IDs are generated.
func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) {
		c.newID = gen
	}
}

// NewController creates a controller over the given graphs and store.
func NewController(graphs ports.GraphLoader, store ports.WorkflowStore, opts ...Option) *Controller {
	c := &Controller{
		graphs: graphs,
		store:  store,
		logger: logging.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.locks == nil {
		c.locks = keylock.New(keylock.WithLogger(c.logger))
	}
	return c
}

// Start opens a workflow for a document.
//
// A document whose latest instance is active cannot be started again. A reset
// instance on the same graph is reactivated in place; anything else gets a new
// instance at the graph's start stage.
func (c *Controller) Start(ctx context.Context, graphID, documentID string, actor domain.Actor) (*domain.WorkflowInstance, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id is required", domain.ErrInvalidRequest)
	}
	g, err := c.graphs.LoadGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}

	var inst *domain.WorkflowInstance
	err = c.locks.WithLock(ctx, documentLockKey(documentID), func(ctx context.Context) error {
		existing, err := c.store.FindByDocument(ctx, documentID)
		switch {
		case errors.Is(err, domain.ErrWorkflowNotFound):
		case err != nil:
			return fmt.Errorf("failed to look up workflow for %s: %w", documentID, err)
		case existing.Status == domain.StatusActive:
			return fmt.Errorf("%w: %s (instance %s)", domain.ErrWorkflowActive, documentID, existing.ID)
		case existing.Status == domain.StatusReset && existing.GraphID == g.ID:
			ch, err := c.update(ctx, existing.ID, func(next *domain.WorkflowInstance, g *domain.StageGraph) (*change, error) {
				return c.restart(next, g, actor)
			})
			if err != nil {
				return err
			}
			inst = ch.inst
			return nil
		}

		inst, err = c.create(ctx, g, documentID, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (c *Controller) create(ctx context.Context, g *domain.StageGraph, documentID string, actor domain.Actor) (*domain.WorkflowInstance, error) {
	now := c.now()
	inst := &domain.WorkflowInstance{
		ID:         c.newID(),
		DocumentID: documentID,
		GraphID:    g.ID,
		Status:     domain.StatusActive,
		Active:     []domain.StageID{g.StartStageID},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	rec := inst.Append(domain.TransitionRecord{
		Kind:       domain.RecordStart,
		To:         []domain.StageID{g.StartStageID},
		ActingRole: actor.Role,
		ActorID:    actor.ID,
		Timestamp:  now,
	})
	if err := c.store.Save(ctx, inst, 0); err != nil {
		return nil, fmt.Errorf("failed to save workflow %s: %w", inst.ID, err)
	}
	c.logger.Info("Workflow started",
		"instance_id", inst.ID,
		"document_id", documentID,
		"graph_id", g.ID,
		"actor_id", actor.ID,
	)
	c.emit(ctx, inst, rec)
	return inst.Clone(), nil
}

func (c *Controller) restart(inst *domain.WorkflowInstance, g *domain.StageGraph, actor domain.Actor) (*change, error) {
	if inst.Status != domain.StatusReset {
		return nil, fmt.Errorf("%w: %s (instance %s)", domain.ErrWorkflowActive, inst.DocumentID, inst.ID)
	}
	inst.Status = domain.StatusActive
	inst.Active = []domain.StageID{g.StartStageID}
	inst.ParentStageID = ""
	inst.Branches = nil
	rec := inst.Append(domain.TransitionRecord{
		Kind:       domain.RecordRestart,
		To:         []domain.StageID{g.StartStageID},
		ActingRole: actor.Role,
		ActorID:    actor.ID,
		Timestamp:  c.now(),
	})
	c.logger.Info("Workflow restarted", "instance_id", inst.ID, "document_id", inst.DocumentID, "actor_id", actor.ID)
	return &change{records: []domain.TransitionRecord{rec}}, nil
}

// Reset sends an instance back to its start stage with status reset. The
// history keeps every earlier record.
func (c *Controller) Reset(ctx context.Context, instanceID string, actor domain.Actor, meta domain.RecordMetadata) (*domain.WorkflowInstance, error) {
	ch, err := c.update(ctx, instanceID, func(inst *domain.WorkflowInstance, g *domain.StageGraph) (*change, error) {
		if inst.Status == domain.StatusCompleted {
			return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowCompleted, inst.ID)
		}
		rec := inst.Append(domain.TransitionRecord{
			Kind:       domain.RecordReset,
			From:       inst.Active,
			To:         []domain.StageID{g.StartStageID},
			ActingRole: actor.Role,
			ActorID:    actor.ID,
			Timestamp:  c.now(),
			Metadata:   meta,
		})
		inst.Status = domain.StatusReset
		inst.Active = []domain.StageID{g.StartStageID}
		inst.ParentStageID = ""
		inst.Branches = nil
		return &change{records: []domain.TransitionRecord{rec}}, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("Workflow reset", "instance_id", instanceID, "actor_id", actor.ID)
	return ch.inst, nil
}

// Status returns the current state of an instance.
func (c *Controller) Status(ctx context.Context, instanceID string) (*domain.WorkflowInstance, error) {
	return c.store.Load(ctx, instanceID)
}

// ForDocument returns the latest instance opened for a document.
func (c *Controller) ForDocument(ctx context.Context, documentID string) (*domain.WorkflowInstance, error) {
	return c.store.FindByDocument(ctx, documentID)
}

func documentLockKey(documentID string) string {
	return "workflow:document:" + documentID
}

// change is the outcome of one mutation of a cloned instance.
type change struct {
	inst    *domain.WorkflowInstance
	records []domain.TransitionRecord
	fanIn   bool
}

// update applies fn to a clone of the stored instance and saves it with CAS.
func (c *Controller) update(ctx context.Context, instanceID string, fn func(*domain.WorkflowInstance, *domain.StageGraph) (*change, error)) (*change, error) {
	var ch *change
	err := c.locks.WithLock(ctx, "workflow:"+instanceID, func(ctx context.Context) error {
		for attempt := 0; ; attempt++ {
			cur, err := c.store.Load(ctx, instanceID)
			if err != nil {
				return err
			}
			g, err := c.graphs.LoadGraph(ctx, cur.GraphID)
			if err != nil {
				return fmt.Errorf("failed to load graph %s for %s: %w", cur.GraphID, instanceID, err)
			}

			next := cur.Clone()
			ch, err = fn(next, g)
			if err != nil {
				return err
			}
			next.UpdatedAt = c.now()

			err = c.store.Save(ctx, next, cur.Revision)
			if errors.Is(err, domain.ErrStaleRevision) {
				if attempt == 0 {
					c.logger.Debug("Workflow revision moved, retrying", "instance_id", instanceID)
					continue
				}
				c.logger.Warn("Lost workflow revision race twice", "instance_id", instanceID)
				return fmt.Errorf("%w: workflow %s", domain.ErrContention, instanceID)
			}
			if err != nil {
				return fmt.Errorf("failed to save workflow %s: %w", instanceID, err)
			}
			ch.inst = next
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	c.emit(ctx, ch.inst, ch.records...)
	ch.inst = ch.inst.Clone()
	return ch, nil
}

func (c *Controller) emit(ctx context.Context, inst *domain.WorkflowInstance, records ...domain.TransitionRecord) {
	if c.hooks.OnTransition == nil {
		return
	}
	for _, rec := range records {
		c.hooks.OnTransition(ctx, &domain.TransitionEvent{
			EventBase:  domain.EventBase{Timestamp: rec.Timestamp, Type: domain.EventTransition},
			InstanceID: inst.ID,
			DocumentID: inst.DocumentID,
			GraphID:    inst.GraphID,
			Record:     rec,
			Status:     inst.Status,
		})
	}
}
