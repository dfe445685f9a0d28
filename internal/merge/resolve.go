package merge

import (
	"context"
	"fmt"

	"github.com/aretw0/redline/pkg/domain"
)

// ResolveConflict settles a conflict with an explicit decision.
//
// accept_a and accept_b re-propose the chosen edit as a fresh item over its
// current footprint and reject the other side; accept_merged proposes the
// decision text over the union of both footprints; reject_both rejects every
// side that was not applied. Applied sides are never rolled back.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, decision domain.Decision, actor domain.Actor) (*domain.ResolveResult, error) {
	if err := decision.Validate(); err != nil {
		return nil, err
	}
	c, err := e.feedback.LoadConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}

	var res *domain.ResolveResult
	err = e.withDocument(ctx, c.DocumentID, func(ctx context.Context, out *outbox) error {
		s, err := e.load(ctx, c.DocumentID, out)
		if err != nil {
			return err
		}
		res, err = s.resolve(ctx, conflictID, decision, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("Conflict resolved",
		"document_id", c.DocumentID,
		"conflict_id", conflictID,
		"resolution", decision.Resolution,
		"actor_id", actor.ID,
	)
	return res, nil
}

func (s *docState) resolve(ctx context.Context, conflictID string, decision domain.Decision, actor domain.Actor) (*domain.ResolveResult, error) {
	var c *domain.Conflict
	for _, known := range s.conflicts {
		if known.ID == conflictID {
			c = known
		}
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrConflictNotFound, conflictID)
	}
	if c.Status == domain.ConflictResolved {
		return nil, fmt.Errorf("%w: %s", domain.ErrConflictResolved, conflictID)
	}

	a, b := s.item(c.FeedbackIDA), s.item(c.FeedbackIDB)
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: conflict %s references missing feedback", domain.ErrFeedbackNotFound, conflictID)
	}
	applied := func(f *domain.FeedbackItem) bool {
		return f.Status == domain.FeedbackApplied || s.cur.HasApplied(f.ID)
	}

	res := &domain.ResolveResult{Conflict: c}
	var fresh *domain.FeedbackItem
	var superseded, rejected []*domain.FeedbackItem

	switch decision.Resolution {
	case domain.ResolutionRejectBoth:
		for _, f := range []*domain.FeedbackItem{a, b} {
			if !applied(f) && !f.Status.Closed() {
				rejected = append(rejected, f)
			}
		}

	case domain.ResolutionAcceptA, domain.ResolutionAcceptB:
		chosen, other := a, b
		if decision.Resolution == domain.ResolutionAcceptB {
			chosen, other = b, a
		}
		if !applied(other) && !other.Status.Closed() {
			rejected = append(rejected, other)
		}
		if applied(chosen) {
			c.ResultFeedbackID = chosen.ID
			break
		}
		if chosen.Status.Closed() {
			return nil, fmt.Errorf("%w: %s is %s", domain.ErrFeedbackClosed, chosen.ID, chosen.Status)
		}
		fp, err := s.footprint(ctx, chosen)
		if err != nil {
			return nil, err
		}
		fresh = s.successor(chosen, fp, chosen.Replacement)
		superseded = append(superseded, chosen)

	case domain.ResolutionAcceptMerged:
		var fp *domain.Range
		for _, f := range []*domain.FeedbackItem{a, b} {
			r, err := s.footprint(ctx, f)
			if err != nil {
				return nil, err
			}
			if fp == nil {
				fp = &r
			} else {
				u := fp.Union(r)
				fp = &u
			}
			if !applied(f) {
				if f.Status.Closed() {
					return nil, fmt.Errorf("%w: %s is %s", domain.ErrFeedbackClosed, f.ID, f.Status)
				}
				superseded = append(superseded, f)
			}
		}
		fresh = s.successor(a, *fp, decision.Text)
		fresh.Supersedes = nil
		for _, f := range superseded {
			fresh.Supersedes = append(fresh.Supersedes, f.ID)
		}
	}

	if fresh != nil {
		ignore := map[string]bool{a.ID: true, b.ID: true}
		proposal, err := s.propose(ctx, fresh, ignore)
		if err != nil {
			return nil, err
		}
		if proposal.Outcome == domain.OutcomeNotFound {
			return nil, fmt.Errorf("%w: resolution of %s no longer matches the document", domain.ErrStaleAnchor, conflictID)
		}
		res.Proposal = proposal
		c.ResultFeedbackID = fresh.ID
	}

	for _, f := range superseded {
		f.Status = domain.FeedbackSuperseded
		if err := s.save(ctx, f); err != nil {
			return nil, err
		}
	}
	for _, f := range rejected {
		f.Status = domain.FeedbackRejected
		if err := s.save(ctx, f); err != nil {
			return nil, err
		}
	}

	c.Status = domain.ConflictResolved
	c.Resolution = decision.Resolution
	c.ResolvedBy = actor.ID
	c.ResolvedAt = s.e.now()
	if err := s.e.feedback.SaveConflict(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save conflict %s: %w", c.ID, err)
	}
	s.out.conflict(c.ResolvedAt, c)
	return res, nil
}

// successor builds the fresh item that carries a resolution, pre-tracked on
// its footprint in the current version.
func (s *docState) successor(from *domain.FeedbackItem, fp domain.Range, replacement string) *domain.FeedbackItem {
	now := s.e.now()
	fresh := &domain.FeedbackItem{
		ID:          s.e.newID(),
		DocumentID:  s.cur.DocumentID,
		Anchor:      domain.Anchor{Text: s.cur.Body[fp.Start:fp.End]},
		Replacement: replacement,
		Severity:    from.Severity,
		AuthorRef:   from.AuthorRef,
		Status:      domain.FeedbackPending,
		BaseVersion: s.cur.Version,
		Supersedes:  []string{from.ID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	fresh.Track(fp, s.cur.Version)
	return fresh
}
