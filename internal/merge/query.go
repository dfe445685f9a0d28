package merge

import (
	"context"

	"github.com/aretw0/redline/pkg/domain"
)

// Pending returns the items still waiting to be proposed.
func (e *Engine) Pending(ctx context.Context, documentID string) ([]*domain.FeedbackItem, error) {
	return e.Feedback(ctx, documentID, domain.FeedbackPending)
}

// Feedback lists a document's items, optionally filtered by status.
func (e *Engine) Feedback(ctx context.Context, documentID string, status domain.FeedbackStatus) ([]*domain.FeedbackItem, error) {
	if _, err := e.docs.LoadLatestVersion(ctx, documentID); err != nil {
		return nil, err
	}
	items, err := e.feedback.ListFeedback(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return items, nil
	}
	out := make([]*domain.FeedbackItem, 0, len(items))
	for _, it := range items {
		if it.Status == status {
			out = append(out, it)
		}
	}
	return out, nil
}

// Conflicts lists a document's conflicts, optionally filtered by status.
func (e *Engine) Conflicts(ctx context.Context, documentID string, status domain.ConflictStatus) ([]*domain.Conflict, error) {
	if _, err := e.docs.LoadLatestVersion(ctx, documentID); err != nil {
		return nil, err
	}
	all, err := e.feedback.ListConflicts(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return all, nil
	}
	out := make([]*domain.Conflict, 0, len(all))
	for _, c := range all {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}
