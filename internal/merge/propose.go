package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/redline/internal/locator"
	"github.com/aretw0/redline/pkg/domain"
)

// Submit registers a pending feedback item without applying it. The anchor is
// located against the item's base version and tracked to the current one.
//
// A stale anchor is stored with status stale and reported as
// domain.ErrStaleAnchor alongside the saved item. Submitting an existing ID
// returns the stored item unchanged.
func (e *Engine) Submit(ctx context.Context, item *domain.FeedbackItem) (*domain.FeedbackItem, error) {
	if err := e.prepare(item); err != nil {
		return nil, err
	}

	var saved *domain.FeedbackItem
	var stale error
	err := e.withDocument(ctx, item.DocumentID, func(ctx context.Context, out *outbox) error {
		saved, stale = nil, nil
		s, err := e.load(ctx, item.DocumentID, out)
		if err != nil {
			return err
		}
		if existing := s.item(item.ID); existing != nil {
			saved = existing
			return nil
		}
		if err := e.checkOwner(ctx, item); err != nil {
			return err
		}

		it := item.Clone()
		it.Status = domain.FeedbackPending
		r, invalidatedBy, err := s.track(ctx, it)
		switch {
		case errors.Is(err, domain.ErrStaleAnchor):
			it.Status = domain.FeedbackStale
			stale = err
		case err != nil:
			return err
		case invalidatedBy != "":
			if _, err := s.conflict(ctx, it.ID, invalidatedBy, invalidatedOverlap(it, invalidatedBy)); err != nil {
				return err
			}
			it.Status = domain.FeedbackConflicted
		default:
			it.Track(r, s.cur.Version)
		}
		if err := s.save(ctx, it); err != nil {
			return err
		}
		saved = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Feedback submitted", "document_id", saved.DocumentID, "feedback_id", saved.ID, "status", saved.Status)
	return saved, stale
}

// Propose applies item to the current version of its document, or reports why
// it cannot. Re-proposing a stored item (by ID) uses its stored state.
func (e *Engine) Propose(ctx context.Context, item *domain.FeedbackItem) (*domain.ProposeResult, error) {
	if err := e.prepare(item); err != nil {
		return nil, err
	}

	var res *domain.ProposeResult
	err := e.withDocument(ctx, item.DocumentID, func(ctx context.Context, out *outbox) error {
		s, err := e.load(ctx, item.DocumentID, out)
		if err != nil {
			return err
		}
		if s.item(item.ID) == nil {
			if err := e.checkOwner(ctx, item); err != nil {
				return err
			}
		}
		res, err = s.propose(ctx, item.Clone(), nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("Feedback proposed",
		"document_id", item.DocumentID,
		"feedback_id", item.ID,
		"outcome", res.Outcome,
		"version", res.Version.Version,
	)
	return res, nil
}

// ProposePending proposes a previously submitted item.
func (e *Engine) ProposePending(ctx context.Context, documentID, feedbackID string) (*domain.ProposeResult, error) {
	item, err := e.feedback.LoadFeedback(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	if item.DocumentID != documentID {
		return nil, fmt.Errorf("%w: %s in document %s", domain.ErrFeedbackNotFound, feedbackID, documentID)
	}
	return e.Propose(ctx, item)
}

func (e *Engine) prepare(item *domain.FeedbackItem) error {
	if item == nil || item.DocumentID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidFeedback)
	}
	if item.Severity != "" && !item.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", domain.ErrInvalidFeedback, item.Severity)
	}
	if item.BaseVersion < 0 {
		return fmt.Errorf("%w: negative base version", domain.ErrInvalidFeedback)
	}
	if item.ID == "" {
		item.ID = e.newID()
	}
	if item.Status == "" {
		item.Status = domain.FeedbackPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = e.now()
	}
	return nil
}

// checkOwner rejects an item whose ID is already taken in another document.
func (e *Engine) checkOwner(ctx context.Context, item *domain.FeedbackItem) error {
	stored, err := e.feedback.LoadFeedback(ctx, item.ID)
	switch {
	case errors.Is(err, domain.ErrFeedbackNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to load feedback %s: %w", item.ID, err)
	case stored.DocumentID != item.DocumentID:
		return fmt.Errorf("%w: id %s belongs to document %s", domain.ErrInvalidFeedback, item.ID, stored.DocumentID)
	}
	return nil
}

// propose runs one proposal inside the document lock. Items in ignore are left
// out of overlap detection.
func (s *docState) propose(ctx context.Context, in *domain.FeedbackItem, ignore map[string]bool) (*domain.ProposeResult, error) {
	item := in
	if stored := s.item(in.ID); stored != nil {
		item = stored
	}
	res := &domain.ProposeResult{Feedback: item, Version: s.cur}
	done := func(o domain.Outcome) (*domain.ProposeResult, error) {
		res.Outcome = o
		s.out.proposal(s.e.now(), res)
		return res, nil
	}

	if s.cur.HasApplied(item.ID) || item.Status == domain.FeedbackApplied {
		return done(domain.OutcomeAlreadyApplied)
	}
	if item.Status.Closed() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrFeedbackClosed, item.ID, item.Status)
	}
	if item.Status == domain.FeedbackConflicted {
		if open := s.open(item.ID); len(open) > 0 {
			res.Conflicts = open
			return done(domain.OutcomeConflict)
		}
	}

	r, invalidatedBy, err := s.track(ctx, item)
	switch {
	case errors.Is(err, domain.ErrStaleAnchor):
		item.Status = domain.FeedbackStale
		if err := s.save(ctx, item); err != nil {
			return nil, err
		}
		return done(domain.OutcomeNotFound)
	case err != nil:
		return nil, err
	case invalidatedBy != "":
		c, err := s.conflict(ctx, item.ID, invalidatedBy, invalidatedOverlap(item, invalidatedBy))
		if err != nil {
			return nil, err
		}
		item.Status = domain.FeedbackConflicted
		if err := s.save(ctx, item); err != nil {
			return nil, err
		}
		res.Conflicts = []*domain.Conflict{c}
		return done(domain.OutcomeConflict)
	}

	blocking, err := s.overlaps(ctx, item, r, ignore)
	if err != nil {
		return nil, err
	}
	if len(blocking) > 0 {
		item.Status = domain.FeedbackConflicted
		item.Track(r, s.cur.Version)
		if err := s.save(ctx, item); err != nil {
			return nil, err
		}
		res.Conflicts = blocking
		return done(domain.OutcomeConflict)
	}

	next, err := s.apply(ctx, item, r)
	if err != nil {
		return nil, err
	}
	res.Version = next
	return done(domain.OutcomeAccepted)
}

// overlaps records a conflict for every unapplied item whose current range
// overlaps r.
func (s *docState) overlaps(ctx context.Context, item *domain.FeedbackItem, r domain.Range, ignore map[string]bool) ([]*domain.Conflict, error) {
	var blocking []*domain.Conflict
	for _, other := range s.items {
		if other.ID == item.ID || ignore[other.ID] || other.Range == nil {
			continue
		}
		if other.Status != domain.FeedbackPending && other.Status != domain.FeedbackConflicted {
			continue
		}
		fp, err := s.footprint(ctx, other)
		if err != nil {
			return nil, err
		}
		if !fp.Overlaps(r) {
			continue
		}
		c, err := s.conflict(ctx, item.ID, other.ID, fmt.Sprintf("%s overlaps %s of %s in version %d", r, fp, other.ID, s.cur.Version))
		if err != nil {
			return nil, err
		}
		blocking = append(blocking, c)
		if other.Status == domain.FeedbackPending {
			other.Status = domain.FeedbackConflicted
			if err := s.save(ctx, other); err != nil {
				return nil, err
			}
		}
	}
	return blocking, nil
}

// apply splices the item into the current body, saves the next version with
// CAS and re-anchors every other open item to it.
func (s *docState) apply(ctx context.Context, item *domain.FeedbackItem, r domain.Range) (*domain.DocumentVersion, error) {
	edit := domain.Edit{FeedbackID: item.ID, Range: r, Replacement: item.Replacement}
	next := s.cur.Next(edit, s.e.now())
	if err := s.e.docs.SaveNewVersion(ctx, next); err != nil {
		return nil, err
	}
	prev := s.cur
	s.cur = next

	item.Status = domain.FeedbackApplied
	item.AppliedVersion = next.Version
	item.Track(domain.Range{Start: r.Start, End: r.Start + len(item.Replacement)}, next.Version)
	if err := s.save(ctx, item); err != nil {
		return nil, err
	}

	for _, other := range s.items {
		if other.ID == item.ID || other.Range == nil || other.RangeVersion != prev.Version {
			continue
		}
		if other.Status != domain.FeedbackPending && other.Status != domain.FeedbackConflicted {
			continue
		}
		moved, ok := locator.Reanchor(*other.Range, r, len(item.Replacement))
		if ok {
			other.Track(moved, next.Version)
		} else {
			if other.Status == domain.FeedbackConflicted {
				continue
			}
			if _, err := s.conflict(ctx, other.ID, item.ID, invalidatedOverlap(other, item.ID)); err != nil {
				return nil, err
			}
			other.Status = domain.FeedbackConflicted
		}
		if err := s.save(ctx, other); err != nil {
			return nil, err
		}
	}
	return next, nil
}

func invalidatedOverlap(item *domain.FeedbackItem, appliedID string) string {
	if item.Range == nil {
		return fmt.Sprintf("%s targets text rewritten by %s", item.ID, appliedID)
	}
	return fmt.Sprintf("%s at %s in version %d targets text rewritten by %s", item.ID, item.Range, item.RangeVersion, appliedID)
}
