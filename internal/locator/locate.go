package locator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/redline/pkg/domain"
)

// PageBreak separates pages in a document body.
const PageBreak = '\f'

var (
	labelLine  = regexp.MustCompile(`^[ \t]*(\d+(?:\.\d+)*)\.?(?:[ \t]|$)`)
	validLabel = regexp.MustCompile(`^\d+(?:\.\d+)*\.?$`)
)

// Locate finds the range of anchor.Text in body.
//
// Whitespace runs are collapsed in both the body and the snippet before
// matching; case is significant. The page, paragraph and line hints narrow the
// search region in that order, and a hint that cannot be resolved leaves the
// broader region in place. The first match inside a narrowed region wins.
// Otherwise the whole body is searched and the snippet must occur exactly once.
func Locate(body string, anchor domain.Anchor) (domain.Range, error) {
	snippet := strings.TrimSpace(collapse(anchor.Text))
	if snippet == "" {
		return domain.Range{}, fmt.Errorf("%w: empty snippet", domain.ErrMalformedAnchor)
	}
	if anchor.Page < 0 || anchor.Line < 0 {
		return domain.Range{}, fmt.Errorf("%w: negative page or line hint", domain.ErrMalformedAnchor)
	}
	if anchor.Paragraph != "" && !validLabel.MatchString(anchor.Paragraph) {
		return domain.Range{}, fmt.Errorf("%w: paragraph %q is not a numbered label", domain.ErrMalformedAnchor, anchor.Paragraph)
	}

	full := domain.Range{Start: 0, End: len(body)}
	region := narrow(body, full, anchor)
	if region != full {
		if r, ok := find(body, region, snippet); ok {
			return r, nil
		}
	}

	r, ok := find(body, full, snippet)
	if !ok {
		return domain.Range{}, fmt.Errorf("%w: %q", domain.ErrStaleAnchor, snippet)
	}
	if _, again := find(body, domain.Range{Start: r.Start + 1, End: len(body)}, snippet); again {
		return domain.Range{}, fmt.Errorf("%w: %q", domain.ErrAmbiguousAnchor, snippet)
	}
	return r, nil
}

// narrow applies the structural hints to region.
func narrow(body string, region domain.Range, a domain.Anchor) domain.Range {
	if a.Page > 0 {
		if r, ok := page(body, a.Page); ok {
			region = r
		}
	}
	if a.Paragraph != "" {
		if r, ok := paragraph(body, region, strings.TrimSuffix(a.Paragraph, ".")); ok {
			region = r
		}
	}
	if a.Line > 0 {
		if r, ok := line(body, region, a.Line); ok {
			region = r
		}
	}
	return region
}

func page(body string, n int) (domain.Range, bool) {
	start := 0
	for i := 1; ; i++ {
		end := strings.IndexRune(body[start:], PageBreak)
		if end < 0 {
			end = len(body)
		} else {
			end += start
		}
		if i == n {
			return domain.Range{Start: start, End: end}, true
		}
		if end == len(body) {
			return domain.Range{}, false
		}
		start = end + 1
	}
}

// paragraph spans from the line labeled with label up to the next labeled line.
func paragraph(body string, region domain.Range, label string) (domain.Range, bool) {
	found := false
	var r domain.Range
	for _, ln := range lines(body, region) {
		m := labelLine.FindStringSubmatch(body[ln.Start:ln.End])
		if m == nil {
			continue
		}
		if found {
			r.End = ln.Start
			return r, true
		}
		if m[1] == label {
			found = true
			r.Start = ln.Start
		}
	}
	if found {
		r.End = region.End
	}
	return r, found
}

func line(body string, region domain.Range, n int) (domain.Range, bool) {
	ls := lines(body, region)
	if n > len(ls) {
		return domain.Range{}, false
	}
	return ls[n-1], true
}

// lines splits region into line ranges, excluding the newline.
func lines(body string, region domain.Range) []domain.Range {
	var out []domain.Range
	start := region.Start
	for start <= region.End {
		end := strings.IndexByte(body[start:region.End], '\n')
		if end < 0 {
			out = append(out, domain.Range{Start: start, End: region.End})
			break
		}
		out = append(out, domain.Range{Start: start, End: start + end})
		start += end + 1
	}
	return out
}

// find searches the collapsed form of body[region] for snippet and maps the
// first hit back to offsets in body.
func find(body string, region domain.Range, snippet string) (domain.Range, bool) {
	if region.Start >= region.End {
		return domain.Range{}, false
	}
	norm, origin := collapseMap(body[region.Start:region.End])
	i := strings.Index(norm, snippet)
	if i < 0 {
		return domain.Range{}, false
	}
	// The snippet is trimmed, so both ends fall on copied bytes.
	last := i + len(snippet) - 1
	return domain.Range{
		Start: region.Start + origin[i],
		End:   region.Start + origin[last] + 1,
	}, true
}

func collapse(s string) string {
	norm, _ := collapseMap(s)
	return norm
}

// collapseMap replaces whitespace runs with one space and returns, for each
// byte of the result, its offset in s.
func collapseMap(s string) (string, []int) {
	var b strings.Builder
	b.Grow(len(s))
	origin := make([]int, 0, len(s))
	inSpace := false
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				origin = append(origin, i)
				inSpace = true
			}
			i += size
			continue
		}
		inSpace = false
		for k := 0; k < size; k++ {
			b.WriteByte(s[i+k])
			origin = append(origin, i+k)
		}
		i += size
	}
	return b.String(), origin
}
