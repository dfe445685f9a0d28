package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/redline/pkg/domain"
)

// Advance performs an action on one stage of an instance.
//
// Rejections are returned as *domain.RejectionError wrapping the validation
// sentinel, so callers can use errors.Is on either.
func (c *Controller) Advance(ctx context.Context, req domain.AdvanceRequest) (*domain.AdvanceResult, error) {
	if req.InstanceID == "" {
		return nil, fmt.Errorf("%w: instance id is required", domain.ErrInvalidRequest)
	}
	if !req.Action.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAction, req.Action)
	}

	cur, err := c.store.Load(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}

	// The document lock orders this advance against Start, which may open a
	// newer instance while this one sits in reset.
	var ch *change
	err = c.locks.WithLock(ctx, documentLockKey(cur.DocumentID), func(ctx context.Context) error {
		ch, err = c.update(ctx, req.InstanceID, func(inst *domain.WorkflowInstance, g *domain.StageGraph) (*change, error) {
			if inst.Status == domain.StatusReset {
				if err := c.checkLatest(ctx, inst); err != nil {
					return nil, &domain.RejectionError{Stage: inst.CurrentStage(), Action: req.Action, Role: req.Actor.Role, Err: err}
				}
			}
			return c.advance(inst, g, req)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	last := ch.records[len(ch.records)-1]
	c.logger.Info("Workflow advanced",
		"instance_id", ch.inst.ID,
		"document_id", ch.inst.DocumentID,
		"action", req.Action,
		"actor_id", req.Actor.ID,
		"to", last.To,
		"fan_in", ch.fanIn,
		"status", ch.inst.Status,
	)
	return &domain.AdvanceResult{Instance: ch.inst, Records: ch.records, FanIn: ch.fanIn}, nil
}

func (c *Controller) advance(inst *domain.WorkflowInstance, g *domain.StageGraph, req domain.AdvanceRequest) (*change, error) {
	reject := func(stage domain.StageID, err error) error {
		return &domain.RejectionError{Stage: stage, Action: req.Action, Role: req.Actor.Role, Err: err}
	}

	if inst.Status == domain.StatusCompleted {
		return nil, reject(inst.CurrentStage(), domain.ErrWorkflowCompleted)
	}
	stageID, err := c.target(inst, g, req)
	if err != nil {
		return nil, reject(req.StageID, err)
	}
	stage, ok := g.Stage(stageID)
	if !ok {
		return nil, fmt.Errorf("instance %s is at %q which graph %s does not define", inst.ID, stageID, g.ID)
	}

	override := false
	if stage.AssignedRole != "" && req.Actor.Role != stage.AssignedRole {
		if !g.CanOverride(req.Actor.Role) {
			return nil, reject(stageID, domain.ErrWrongRole)
		}
		if strings.TrimSpace(req.Metadata.Justification) == "" {
			return nil, reject(stageID, domain.ErrJustificationRequired)
		}
		override = true
	}
	if !stage.Permits(req.Action) {
		return nil, reject(stageID, domain.ErrActionNotPermitted)
	}

	rec := domain.TransitionRecord{
		Kind:       domain.RecordTransition,
		From:       []domain.StageID{stageID},
		Action:     req.Action,
		ActingRole: req.Actor.Role,
		ActorID:    req.Actor.ID,
		Timestamp:  c.now(),
		Override:   override,
		Metadata:   req.Metadata,
	}
	ch := &change{}

	if stage.IsParallelBranch {
		if join, ok := g.FanIn(stage.ParentStageID); ok && join.Trigger == req.Action {
			b, ok := inst.Branch(stageID)
			if !ok {
				return nil, fmt.Errorf("instance %s has no branch record for %q", inst.ID, stageID)
			}
			b.Complete = true
			b.CompletedBy = req.Actor.ID
			b.CompletedAt = rec.Timestamp
			rec.Kind = domain.RecordBranchComplete
			c.activate(inst)
			ch.records = append(ch.records, inst.Append(rec))

			if joined, ok := c.checkFanIn(inst, g, stage.ParentStageID, rec); ok {
				ch.records = append(ch.records, joined)
				ch.fanIn = true
			}
			return ch, nil
		}
	}

	t, ok := g.Outgoing(stageID, req.Action)
	if !ok {
		if req.Action == domain.ActionComment {
			rec.Kind = domain.RecordComment
			rec.To = []domain.StageID{stageID}
			c.activate(inst)
			ch.records = append(ch.records, inst.Append(rec))
			return ch, nil
		}
		return nil, reject(stageID, domain.ErrNoSuchTransition)
	}

	rec.To = slices.Clone(t.To)
	c.activate(inst)
	c.move(inst, g, stageID, t.To)
	ch.records = append(ch.records, inst.Append(rec))
	return ch, nil
}

// target picks the stage an advance applies to.
func (c *Controller) target(inst *domain.WorkflowInstance, g *domain.StageGraph, req domain.AdvanceRequest) (domain.StageID, error) {
	if req.StageID != "" {
		if !inst.IsActive(req.StageID) {
			return "", fmt.Errorf("%w: %s", domain.ErrStageNotActive, req.StageID)
		}
		if b, ok := inst.Branch(req.StageID); ok && b.Complete {
			return "", fmt.Errorf("%w: %s", domain.ErrBranchComplete, req.StageID)
		}
		return req.StageID, nil
	}
	if len(inst.Active) == 1 {
		return inst.Active[0], nil
	}

	var matches []domain.StageID
	for _, id := range inst.PendingBranches() {
		if s, ok := g.Stage(id); ok && s.AssignedRole == req.Actor.Role {
			matches = append(matches, id)
		}
	}
	if len(matches) != 1 {
		return "", fmt.Errorf("%w: active %v", domain.ErrAmbiguousStage, inst.Active)
	}
	return matches[0], nil
}

// checkLatest fails when the document has moved on to another instance.
func (c *Controller) checkLatest(ctx context.Context, inst *domain.WorkflowInstance) error {
	latest, err := c.store.FindByDocument(ctx, inst.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to look up workflow for %s: %w", inst.DocumentID, err)
	}
	if latest.ID != inst.ID {
		return fmt.Errorf("%w: %s (instance %s)", domain.ErrWorkflowSuperseded, inst.DocumentID, latest.ID)
	}
	return nil
}

// activate flips a reset instance back to active on its first advance.
func (c *Controller) activate(inst *domain.WorkflowInstance) {
	if inst.Status == domain.StatusReset {
		inst.Status = domain.StatusActive
	}
}

// move places the instance on the targets of a transition leaving from.
func (c *Controller) move(inst *domain.WorkflowInstance, g *domain.StageGraph, from domain.StageID, to []domain.StageID) {
	first, _ := g.Stage(to[0])

	switch {
	case first.IsParallelBranch && inst.ParentStageID == first.ParentStageID && inst.IsActive(from):
		// A branch looping on itself stays where it is; graphs never move a
		// branch onto a sibling.
		return

	case first.IsParallelBranch:
		inst.Active = slices.Clone(to)
		inst.ParentStageID = first.ParentStageID
		inst.Branches = make([]domain.Branch, len(to))
		for i, id := range to {
			inst.Branches[i] = domain.Branch{StageID: id}
		}

	default:
		inst.Active = []domain.StageID{to[0]}
		inst.ParentStageID = ""
		inst.Branches = nil
	}

	if len(inst.Active) == 1 && g.IsTerminal(inst.Active[0]) {
		inst.Status = domain.StatusCompleted
	}
}
