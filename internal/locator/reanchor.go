package locator

import "github.com/aretw0/redline/pkg/domain"

// Reanchor maps old through an edit that replaced the edit range with
// replacementLen bytes. Ranges ending at or before the edit start are
// unchanged, ranges starting at or after its end shift by the length delta,
// and ranges that overlap it are invalidated (ok is false).
func Reanchor(old, edit domain.Range, replacementLen int) (domain.Range, bool) {
	delta := replacementLen - edit.Len()
	switch {
	case old.End <= edit.Start:
		return old, true
	case old.Start >= edit.End:
		return domain.Range{Start: old.Start + delta, End: old.End + delta}, true
	}
	return domain.Range{}, false
}

// Expand is Reanchor that never invalidates: a range overlapping the edit
// grows to cover everything the edit touched, in new coordinates.
func Expand(old, edit domain.Range, replacementLen int) domain.Range {
	if r, ok := Reanchor(old, edit, replacementLen); ok {
		return r
	}
	delta := replacementLen - edit.Len()
	return domain.Range{
		Start: min(old.Start, edit.Start),
		End:   max(old.End, edit.End) + delta,
	}
}
