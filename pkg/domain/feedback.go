package domain

import (
	"fmt"
	"slices"
	"time"
)

// Range is a half-open byte interval [Start, End) in a document body.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered.
func (r Range) Len() int {
	return r.End - r.Start
}

// Overlaps reports whether the two ranges share at least one position.
// Adjacent ranges do not overlap. An empty range (an insertion point)
// overlaps a range that strictly contains it.
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

// Union returns the smallest range covering both.
func (r Range) Union(o Range) Range {
	return Range{Start: min(r.Start, o.Start), End: max(r.End, o.End)}
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Anchor is a structural and textual reference to where an edit applies.
// Page, Paragraph and Line are hints; Text is the exact snippet to replace.
type Anchor struct {
	Page      int    `json:"page,omitempty"`
	Paragraph string `json:"paragraph,omitempty"` // e.g. "1.1.2"
	Line      int    `json:"line,omitempty"`
	Text      string `json:"text"`
}

// Severity grades a comment the way formal comment matrices do.
type Severity string

const (
	SeverityCritical       Severity = "critical"
	SeveritySubstantive    Severity = "substantive"
	SeverityAdministrative Severity = "administrative"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeveritySubstantive, SeverityAdministrative:
		return true
	}
	return false
}

// FeedbackStatus tracks a FeedbackItem through the merge engine.
type FeedbackStatus string

const (
	FeedbackPending    FeedbackStatus = "pending"
	FeedbackApplied    FeedbackStatus = "applied"
	FeedbackConflicted FeedbackStatus = "conflicted"
	FeedbackStale      FeedbackStatus = "stale"
	FeedbackRejected   FeedbackStatus = "rejected"
	FeedbackSuperseded FeedbackStatus = "superseded"
)

// Closed reports whether the item can no longer be proposed.
func (s FeedbackStatus) Closed() bool {
	return s == FeedbackRejected || s == FeedbackSuperseded
}

// FeedbackItem is a reviewer-suggested replacement of Anchor.Text.
type FeedbackItem struct {
	ID          string         `json:"id"`
	DocumentID  string         `json:"document_id"`
	Anchor      Anchor         `json:"anchor"`
	Replacement string         `json:"replacement"`
	Severity    Severity       `json:"severity,omitempty"`
	AuthorRef   string         `json:"author_ref,omitempty"`
	Status      FeedbackStatus `json:"status"`

	// BaseVersion is the version the reviewer read when writing the edit.
	// Zero means "whatever is current when proposed".
	BaseVersion int `json:"base_version,omitempty"`

	// Range is the last known location of the edit, valid in RangeVersion.
	// For applied items it covers the replacement text.
	Range        *Range `json:"range,omitempty"`
	RangeVersion int    `json:"range_version,omitempty"`

	// AppliedVersion is the version produced by applying this item.
	AppliedVersion int `json:"applied_version,omitempty"`

	// Supersedes lists the items this one replaced during conflict resolution.
	Supersedes []string `json:"supersedes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Track records the item's location in a given version.
func (f *FeedbackItem) Track(r Range, version int) {
	f.Range = &r
	f.RangeVersion = version
}

// Clone returns a deep copy.
func (f *FeedbackItem) Clone() *FeedbackItem {
	if f == nil {
		return nil
	}
	c := *f
	if f.Range != nil {
		r := *f.Range
		c.Range = &r
	}
	c.Supersedes = slices.Clone(f.Supersedes)
	return &c
}
