package locator

import (
	"testing"

	"github.com/aretw0/redline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate(t *testing.T) {
	structured := "1. Scope\nThe cat sat.\n2. Terms\nThe cat ran.\n"

	tests := []struct {
		name   string
		body   string
		anchor domain.Anchor
		want   domain.Range
	}{
		{
			name:   "Plain Snippet",
			body:   "The maual is good.",
			anchor: domain.Anchor{Paragraph: "1.1", Line: 1, Text: "maual"},
			want:   domain.Range{Start: 4, End: 9},
		},
		{
			name:   "Whitespace Drift",
			body:   "The  maual\n is good.",
			anchor: domain.Anchor{Text: "maual   is"},
			want:   domain.Range{Start: 5, End: 14},
		},
		{
			name:   "Paragraph Hint Picks Second",
			body:   structured,
			anchor: domain.Anchor{Paragraph: "2", Text: "cat"},
			want:   domain.Range{Start: 35, End: 38},
		},
		{
			name:   "Paragraph Hint With Trailing Dot",
			body:   structured,
			anchor: domain.Anchor{Paragraph: "1.", Text: "cat"},
			want:   domain.Range{Start: 13, End: 16},
		},
		{
			name:   "Line Hint",
			body:   "cat\ndog cat",
			anchor: domain.Anchor{Line: 2, Text: "cat"},
			want:   domain.Range{Start: 8, End: 11},
		},
		{
			name:   "Page Hint",
			body:   "cat\fcat",
			anchor: domain.Anchor{Page: 2, Text: "cat"},
			want:   domain.Range{Start: 4, End: 7},
		},
		{
			name:   "Hinted Region Misses Then Unique Fallback",
			body:   "1. Intro\nhello\n2. Body\nworld",
			anchor: domain.Anchor{Paragraph: "2", Text: "hello"},
			want:   domain.Range{Start: 9, End: 14},
		},
		{
			name:   "Multibyte Offsets",
			body:   "Olá  mundo",
			anchor: domain.Anchor{Text: "á mundo"},
			want:   domain.Range{Start: 2, End: 11},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Locate(tt.body, tt.anchor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		anchor domain.Anchor
		want   error
	}{
		{"Empty Snippet", "body", domain.Anchor{Text: "  \n"}, domain.ErrMalformedAnchor},
		{"Bad Paragraph Label", "body", domain.Anchor{Paragraph: "a.b", Text: "body"}, domain.ErrMalformedAnchor},
		{"Negative Line", "body", domain.Anchor{Line: -1, Text: "body"}, domain.ErrMalformedAnchor},
		{"Case Mismatch", "The maual is good.", domain.Anchor{Text: "Maual"}, domain.ErrStaleAnchor},
		{"Absent", "The manual is good.", domain.Anchor{Text: "maual"}, domain.ErrStaleAnchor},
		{"Ambiguous Without Hints", "a cat and a cat", domain.Anchor{Text: "cat"}, domain.ErrAmbiguousAnchor},
		{"Unresolvable Hint Keeps Full Body", "a cat and a cat", domain.Anchor{Paragraph: "9", Text: "cat"}, domain.ErrAmbiguousAnchor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Locate(tt.body, tt.anchor)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLocate_ResultIndexesOriginalBody(t *testing.T) {
	body := "Section\t 1.1\n\nThe   quick brown fox."
	r, err := Locate(body, domain.Anchor{Text: "The quick brown"})
	require.NoError(t, err)
	assert.Equal(t, "The   quick brown", body[r.Start:r.End])
}
