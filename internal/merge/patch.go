package merge

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// PatchContext is the number of unchanged lines shown around a change.
const PatchContext = 3

// Patch renders the change that produced version as a unified diff against
// its predecessor. Version 1 is diffed against an empty body.
func (e *Engine) Patch(ctx context.Context, documentID string, version int) (string, error) {
	v, err := e.docs.LoadVersion(ctx, documentID, version)
	if err != nil {
		return "", err
	}
	prev := ""
	if version > 1 {
		p, err := e.docs.LoadVersion(ctx, documentID, version-1)
		if err != nil {
			return "", err
		}
		prev = p.Body
	}

	fd := &diff.FileDiff{
		OrigName: fmt.Sprintf("a/%s@v%d", documentID, version-1),
		NewName:  fmt.Sprintf("b/%s@v%d", documentID, version),
	}
	if h := hunk(splitLines(prev), splitLines(v.Body)); h != nil {
		fd.Hunks = []*diff.Hunk{h}
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("failed to print patch: %w", err)
	}
	return string(out), nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// hunk builds the single hunk between two bodies. Consecutive versions differ
// by one contiguous splice, so trimming the common prefix and suffix is exact.
func hunk(old, cur []string) *diff.Hunk {
	prefix := 0
	for prefix < len(old) && prefix < len(cur) && old[prefix] == cur[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(old)-prefix && suffix < len(cur)-prefix &&
		old[len(old)-1-suffix] == cur[len(cur)-1-suffix] {
		suffix++
	}
	if prefix == len(old) && prefix == len(cur) {
		return nil
	}

	start := max(0, prefix-PatchContext)
	oldEnd := min(len(old), len(old)-suffix+PatchContext)
	newEnd := min(len(cur), len(cur)-suffix+PatchContext)

	var body strings.Builder
	for _, l := range old[start:prefix] {
		body.WriteString(" " + l + "\n")
	}
	for _, l := range old[prefix : len(old)-suffix] {
		body.WriteString("-" + l + "\n")
	}
	for _, l := range cur[prefix : len(cur)-suffix] {
		body.WriteString("+" + l + "\n")
	}
	for _, l := range old[len(old)-suffix : oldEnd] {
		body.WriteString(" " + l + "\n")
	}

	h := &diff.Hunk{
		OrigStartLine: int32(start + 1),
		OrigLines:     int32(oldEnd - start),
		NewStartLine:  int32(start + 1),
		NewLines:      int32(newEnd - start),
		Body:          []byte(body.String()),
	}
	if h.OrigLines == 0 {
		h.OrigStartLine = int32(start)
	}
	if h.NewLines == 0 {
		h.NewStartLine = int32(start)
	}
	return h
}
