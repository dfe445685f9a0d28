package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/redline/pkg/graphs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFiles(t *testing.T) {
	dir := t.TempDir()
	writeGraph(t, dir, "short.yaml", shortReview)
	writeGraph(t, dir, "quick.json", `{"stages": [{"id": "write", "role": "author", "on": {"submit": "end"}}, {"id": "end", "type": "terminal"}]}`)
	writeGraph(t, dir, "notes.md", "# ignored")

	var out bytes.Buffer
	require.NoError(t, ValidateFiles(&out, []string{dir}, true))
	assert.Contains(t, out.String(), "short-review (3 stages)")
	assert.Contains(t, out.String(), "quick (2 stages)")
	assert.NotContains(t, out.String(), "notes.md")

	bad := writeGraph(t, dir, "broken.yaml", shortReview+"colour: red\n")
	out.Reset()
	err := ValidateFiles(&out, []string{dir}, true)
	assert.ErrorContains(t, err, "1 of 3 graph files are invalid")
	assert.Contains(t, out.String(), "❌ "+bad)

	out.Reset()
	assert.NoError(t, ValidateFiles(&out, []string{bad}, false), "lenient mode ignores unknown keys")

	assert.Error(t, ValidateFiles(&out, []string{filepath.Join(dir, "missing.yaml")}, false))
	assert.ErrorContains(t, ValidateFiles(&out, []string{t.TempDir()}, false), "no graph files")
}

func TestValidateLoader(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, ValidateLoader(context.Background(), &out, graphs.Loader()))
	assert.Contains(t, out.String(), graphs.FormalReviewID)
	assert.Contains(t, out.String(), graphs.LinearReviewID)
}
