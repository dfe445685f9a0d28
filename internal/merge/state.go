package merge

import (
	"context"
	"fmt"

	"github.com/aretw0/redline/internal/locator"
	"github.com/aretw0/redline/pkg/domain"
)

// docState is one consistent read of a document and its feedback, taken
// inside the document lock.
type docState struct {
	e         *Engine
	out       *outbox
	cur       *domain.DocumentVersion
	items     []*domain.FeedbackItem
	conflicts []*domain.Conflict
}

func (e *Engine) load(ctx context.Context, documentID string, out *outbox) (*docState, error) {
	cur, err := e.docs.LoadLatestVersion(ctx, documentID)
	if err != nil {
		return nil, err
	}
	items, err := e.feedback.ListFeedback(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback for %s: %w", documentID, err)
	}
	conflicts, err := e.feedback.ListConflicts(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts for %s: %w", documentID, err)
	}
	return &docState{e: e, out: out, cur: cur, items: items, conflicts: conflicts}, nil
}

func (s *docState) item(id string) *domain.FeedbackItem {
	for _, it := range s.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (s *docState) save(ctx context.Context, item *domain.FeedbackItem) error {
	item.UpdatedAt = s.e.now()
	if err := s.e.feedback.SaveFeedback(ctx, item); err != nil {
		return fmt.Errorf("failed to save feedback %s: %w", item.ID, err)
	}
	if s.item(item.ID) == nil {
		s.items = append(s.items, item)
	}
	return nil
}

// open returns the unresolved conflicts involving feedbackID.
func (s *docState) open(feedbackID string) []*domain.Conflict {
	var out []*domain.Conflict
	for _, c := range s.conflicts {
		if c.Status == domain.ConflictOpen && c.Involves(feedbackID) {
			out = append(out, c)
		}
	}
	return out
}

// conflict returns the open conflict between a and b, recording a new one if needed.
func (s *docState) conflict(ctx context.Context, a, b, overlap string) (*domain.Conflict, error) {
	for _, c := range s.open(a) {
		if c.Involves(b) {
			return c, nil
		}
	}
	c := &domain.Conflict{
		ID:          s.e.newID(),
		DocumentID:  s.cur.DocumentID,
		FeedbackIDA: a,
		FeedbackIDB: b,
		Version:     s.cur.Version,
		Overlap:     overlap,
		Status:      domain.ConflictOpen,
		CreatedAt:   s.e.now(),
	}
	if err := s.e.feedback.SaveConflict(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save conflict: %w", err)
	}
	s.conflicts = append(s.conflicts, c)
	s.out.conflict(c.CreatedAt, c)
	s.e.logger.Info("Conflict opened",
		"document_id", c.DocumentID,
		"conflict_id", c.ID,
		"feedback_a", a,
		"feedback_b", b,
	)
	return c, nil
}

func (s *docState) version(ctx context.Context, n int) (*domain.DocumentVersion, error) {
	if n == s.cur.Version {
		return s.cur, nil
	}
	return s.e.docs.LoadVersion(ctx, s.cur.DocumentID, n)
}

// track resolves the item's range in the current version.
//
// A tracked range is carried forward from its version; otherwise the anchor is
// located in the item's base version. When a later edit overlaps the range,
// invalidatedBy names the applied feedback and the item keeps its last valid
// range.
func (s *docState) track(ctx context.Context, item *domain.FeedbackItem) (r domain.Range, invalidatedBy string, err error) {
	if item.Range != nil && item.RangeVersion == s.cur.Version {
		return *item.Range, "", nil
	}

	from := item.RangeVersion
	if item.Range != nil && from > 0 && from < s.cur.Version {
		r = *item.Range
	} else {
		base := item.BaseVersion
		if base == 0 {
			base = s.cur.Version
		}
		if base > s.cur.Version {
			return domain.Range{}, "", fmt.Errorf("%w: base version %d is newer than %d", domain.ErrInvalidFeedback, base, s.cur.Version)
		}
		v, err := s.version(ctx, base)
		if err != nil {
			return domain.Range{}, "", err
		}
		r, err = locator.Locate(v.Body, item.Anchor)
		if err != nil {
			return domain.Range{}, "", err
		}
		from = base
	}

	for n := from + 1; n <= s.cur.Version; n++ {
		v, err := s.version(ctx, n)
		if err != nil {
			return domain.Range{}, "", err
		}
		if v.Edit == nil {
			continue
		}
		moved, ok := locator.Reanchor(r, v.Edit.Range, len(v.Edit.Replacement))
		if !ok {
			item.Track(r, n-1)
			return domain.Range{}, v.Edit.FeedbackID, nil
		}
		r = moved
	}
	return r, "", nil
}

// footprint maps the item's last known range to the current version, growing
// it over any edit that overlapped it. Items that were never located are
// located in their base version first.
func (s *docState) footprint(ctx context.Context, item *domain.FeedbackItem) (domain.Range, error) {
	var r domain.Range
	from := item.RangeVersion
	if item.Range != nil && from > 0 {
		r = *item.Range
	} else {
		base := item.BaseVersion
		if base == 0 {
			base = s.cur.Version
		}
		v, err := s.version(ctx, base)
		if err != nil {
			return domain.Range{}, err
		}
		r, err = locator.Locate(v.Body, item.Anchor)
		if err != nil {
			return domain.Range{}, err
		}
		from = base
	}
	for n := from + 1; n <= s.cur.Version; n++ {
		v, err := s.version(ctx, n)
		if err != nil {
			return domain.Range{}, err
		}
		if v.Edit != nil {
			r = locator.Expand(r, v.Edit.Range, len(v.Edit.Replacement))
		}
	}
	return r, nil
}
