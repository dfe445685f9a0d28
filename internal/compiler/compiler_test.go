package compiler_test

import (
	"testing"

	"github.com/aretw0/redline/internal/compiler"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parallelYAML = `
id: quick-parallel
name: Quick parallel
start: draft
override_roles: [admin, leadership]
stages:
  - id: draft
    role: author
    actions: comment
    on:
      submit: review
  - id: review
    role: coordinator
    fork:
      distribute: panel
  - id: panel
    type: parallel
    join:
      complete_review: done
  - id: panel.legal
    type: branch
    parent: panel
    role: legal
  - id: panel.policy
    type: branch
    parent: panel
    role: policy_reviewer
    order: 3.2
  - id: done
    type: terminal
`

func TestParser_Parse(t *testing.T) {
	g, err := compiler.NewParser().Parse([]byte(parallelYAML))
	require.NoError(t, err)

	assert.Equal(t, "quick-parallel", g.ID)
	assert.Equal(t, "Quick parallel", g.Name)
	assert.Equal(t, domain.StageID("draft"), g.StartStageID)
	assert.True(t, g.CanOverride(domain.RoleLeadership))

	draft, ok := g.Stage("draft")
	require.True(t, ok)
	assert.True(t, draft.Permits(domain.ActionComment))
	assert.True(t, draft.Permits(domain.ActionSubmit))

	out, ok := g.Outgoing("review", domain.ActionDistribute)
	require.True(t, ok)
	assert.ElementsMatch(t, []domain.StageID{"panel.legal", "panel.policy"}, out.To)

	join, ok := g.FanIn("panel")
	require.True(t, ok)
	assert.Equal(t, domain.ActionCompleteReview, join.Trigger)
	assert.Equal(t, []domain.StageID{"done"}, join.To)

	policy, ok := g.Stage("panel.policy")
	require.True(t, ok)
	assert.Equal(t, 3.2, policy.Order)
	assert.True(t, policy.Permits(domain.ActionCompleteReview))
	assert.True(t, g.IsTerminal("done"))
}

func TestParser_JSON(t *testing.T) {
	data := `{"id": "tiny", "stages": [` +
		`{"id": "write", "role": "author", "on": {"submit": "end"}}, ` +
		`{"id": "end", "type": "terminal"}]}`
	g, err := compiler.NewParser().Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, domain.StageID("write"), g.StartStageID)
	assert.Equal(t, []domain.Role{domain.RoleAdmin}, g.OverrideRoles)
}

func TestParser_ExplicitTransitions(t *testing.T) {
	data := `
id: explicit
stages:
  - {id: write, role: author}
  - {id: check, role: gatekeeper}
  - {id: end, type: terminal}
transitions:
  - {from: write, to: check, trigger: submit}
  - {from: [check], to: [end], trigger: approve}
`
	g, err := compiler.NewParser().Parse([]byte(data))
	require.NoError(t, err)

	out, ok := g.Outgoing("write", domain.ActionSubmit)
	require.True(t, ok)
	assert.Equal(t, []domain.StageID{"check"}, out.To)

	check, _ := g.Stage("check")
	assert.True(t, check.Permits(domain.ActionApprove))
}

func TestParser_Compile_FallbackID(t *testing.T) {
	raw := map[string]any{
		"stages": []any{
			map[string]any{"id": "write", "role": "author", "on": map[string]any{"submit": "end"}},
			map[string]any{"id": "end", "type": "terminal"},
		},
	}
	g, err := compiler.NewParser().Compile(raw, "from-file")
	require.NoError(t, err)
	assert.Equal(t, "from-file", g.ID)
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		strict bool
	}{
		{"not yaml", "id: [unclosed", false},
		{"empty", "", false},
		{"unknown action", "id: x\nstages:\n  - {id: a, role: author, on: {shout: b}}\n  - {id: b, type: terminal}", false},
		{"unknown type", "id: x\nstages:\n  - {id: a, type: loop, role: author}", false},
		{"missing id", "id: x\nstages:\n  - {role: author}", false},
		{"dangling target", "id: x\nstages:\n  - {id: a, role: author, on: {submit: nowhere}}", false},
		{"unknown key in strict mode", "id: x\ncolour: red\nstages:\n  - {id: a, role: author, on: {submit: b}}\n  - {id: b, type: terminal}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := compiler.NewParser()
			p.Strict = tt.strict
			_, err := p.Parse([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidGraph)
		})
	}
}

func TestParser_LenientIgnoresUnknownKeys(t *testing.T) {
	data := "id: x\ncolour: red\nstages:\n  - {id: a, role: author, on: {submit: b}}\n  - {id: b, type: terminal}"
	_, err := compiler.NewParser().Parse([]byte(data))
	require.NoError(t, err)
}
