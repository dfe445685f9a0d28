package locator

import (
	"testing"

	"github.com/aretw0/redline/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestReanchor(t *testing.T) {
	edit := domain.Range{Start: 4, End: 9} // "maual" -> "manual"

	tests := []struct {
		name   string
		old    domain.Range
		edit   domain.Range
		repl   int
		want   domain.Range
		wantOK bool
	}{
		{"Before", domain.Range{Start: 0, End: 3}, edit, 6, domain.Range{Start: 0, End: 3}, true},
		{"Adjacent Before", domain.Range{Start: 0, End: 4}, edit, 6, domain.Range{Start: 0, End: 4}, true},
		{"After", domain.Range{Start: 10, End: 14}, edit, 6, domain.Range{Start: 11, End: 15}, true},
		{"Adjacent After", domain.Range{Start: 9, End: 12}, edit, 6, domain.Range{Start: 10, End: 13}, true},
		{"Shrinking Edit", domain.Range{Start: 10, End: 14}, edit, 2, domain.Range{Start: 7, End: 11}, true},
		{"Overlap", domain.Range{Start: 4, End: 17}, edit, 6, domain.Range{}, false},
		{"Contained", domain.Range{Start: 5, End: 6}, edit, 6, domain.Range{}, false},
		{"Insertion Inside", domain.Range{Start: 2, End: 8}, domain.Range{Start: 5, End: 5}, 3, domain.Range{}, false},
		{"Insertion At Start", domain.Range{Start: 5, End: 8}, domain.Range{Start: 5, End: 5}, 3, domain.Range{Start: 8, End: 11}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Reanchor(tt.old, tt.edit, tt.repl)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestReanchor_TracksText(t *testing.T) {
	body := "alpha beta gamma delta"
	edit := domain.Range{Start: 6, End: 10} // "beta"
	replacement := "BETA-PRIME"
	next := body[:edit.Start] + replacement + body[edit.End:]

	for _, word := range []domain.Range{{Start: 0, End: 5}, {Start: 11, End: 16}, {Start: 17, End: 22}} {
		moved, ok := Reanchor(word, edit, len(replacement))
		if assert.True(t, ok) {
			assert.Equal(t, body[word.Start:word.End], next[moved.Start:moved.End])
		}
	}
}

func TestExpand(t *testing.T) {
	edit := domain.Range{Start: 4, End: 9}

	assert.Equal(t, domain.Range{Start: 4, End: 18}, Expand(domain.Range{Start: 4, End: 17}, edit, 6))
	assert.Equal(t, domain.Range{Start: 4, End: 10}, Expand(domain.Range{Start: 5, End: 6}, edit, 6))
	assert.Equal(t, domain.Range{Start: 2, End: 10}, Expand(domain.Range{Start: 2, End: 6}, edit, 6))
	assert.Equal(t, domain.Range{Start: 11, End: 15}, Expand(domain.Range{Start: 10, End: 14}, edit, 6))
}
