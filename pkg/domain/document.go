package domain

import (
	"slices"
	"time"
)

// Edit is the splice that produced a version from its predecessor.
type Edit struct {
	FeedbackID  string `json:"feedback_id"`
	Range       Range  `json:"range"` // in the predecessor's coordinates
	Replacement string `json:"replacement"`
}

// Delta is the net change in body length caused by the edit.
func (e Edit) Delta() int {
	return len(e.Replacement) - e.Range.Len()
}

// DocumentVersion is an immutable snapshot of a document body.
type DocumentVersion struct {
	DocumentID         string    `json:"document_id"`
	Version            int       `json:"version"`
	Body               string    `json:"body"`
	AppliedFeedbackIDs []string  `json:"applied_feedback_ids,omitempty"`
	Edit               *Edit     `json:"edit,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// HasApplied reports whether the feedback item is already part of this version.
func (d *DocumentVersion) HasApplied(feedbackID string) bool {
	return slices.Contains(d.AppliedFeedbackIDs, feedbackID)
}

// Next produces the successor version by applying the edit.
// The caller must make sure the range is valid for d.Body.
func (d *DocumentVersion) Next(edit Edit, at time.Time) *DocumentVersion {
	body := d.Body[:edit.Range.Start] + edit.Replacement + d.Body[edit.Range.End:]
	applied := slices.Clone(d.AppliedFeedbackIDs)
	applied = append(applied, edit.FeedbackID)
	return &DocumentVersion{
		DocumentID:         d.DocumentID,
		Version:            d.Version + 1,
		Body:               body,
		AppliedFeedbackIDs: applied,
		Edit:               &edit,
		CreatedAt:          at,
	}
}

// Clone returns a deep copy.
func (d *DocumentVersion) Clone() *DocumentVersion {
	if d == nil {
		return nil
	}
	c := *d
	c.AppliedFeedbackIDs = slices.Clone(d.AppliedFeedbackIDs)
	if d.Edit != nil {
		e := *d.Edit
		c.Edit = &e
	}
	return &c
}
