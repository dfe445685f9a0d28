package workflow

import (
	"slices"

	"github.com/aretw0/redline/pkg/domain"
)

// checkFanIn fires the fan-in transition of parent once every branch of the
// running fan-out is complete. It is the only place a fan-in executes; the
// caller holds the instance lock and saves with CAS, so the join is recorded
// at most once per fan-out.
func (c *Controller) checkFanIn(inst *domain.WorkflowInstance, g *domain.StageGraph, parent domain.StageID, by domain.TransitionRecord) (domain.TransitionRecord, bool) {
	if inst.ParentStageID != parent || len(inst.Branches) == 0 || len(inst.PendingBranches()) > 0 {
		return domain.TransitionRecord{}, false
	}
	join, ok := g.FanIn(parent)
	if !ok {
		return domain.TransitionRecord{}, false
	}

	from := slices.Clone(inst.Active)
	c.move(inst, g, parent, join.To)
	rec := inst.Append(domain.TransitionRecord{
		Kind:       domain.RecordFanIn,
		From:       from,
		To:         slices.Clone(join.To),
		Action:     join.Trigger,
		ActingRole: by.ActingRole,
		ActorID:    by.ActorID,
		Timestamp:  by.Timestamp,
		Override:   by.Override,
	})
	c.logger.Info("Parallel review joined",
		"instance_id", inst.ID,
		"parent", parent,
		"to", join.To,
	)
	return rec, true
}
