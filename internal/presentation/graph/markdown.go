package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/redline/pkg/domain"
)

// Markdown renders g as a heading plus a stage table ordered by stage order.
func Markdown(g *domain.StageGraph) string {
	var sb strings.Builder
	title := g.Name
	if title == "" {
		title = g.ID
	}
	sb.WriteString(fmt.Sprintf("# %s\n\n", title))
	if g.Description != "" {
		sb.WriteString(strings.TrimSpace(g.Description) + "\n\n")
	}

	sb.WriteString("| Order | Stage | Role | Actions | Next |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, s := range g.Stages {
		name := s.Name
		if name == "" {
			name = string(s.ID)
		}
		if s.IsParallelBranch {
			name = "↳ " + name
		}
		actions := make([]string, len(s.PermittedActions))
		for i, a := range s.PermittedActions {
			actions[i] = "`" + string(a) + "`"
		}
		sb.WriteString(fmt.Sprintf("| %g | %s | %s | %s | %s |\n",
			s.Order, name, s.AssignedRole, strings.Join(actions, " "), next(g, s.ID)))
	}

	if len(g.OverrideRoles) > 0 {
		roles := make([]string, len(g.OverrideRoles))
		for i, r := range g.OverrideRoles {
			roles[i] = string(r)
		}
		sb.WriteString(fmt.Sprintf("\nOverride roles: %s\n", strings.Join(roles, ", ")))
	}
	return sb.String()
}

func next(g *domain.StageGraph, id domain.StageID) string {
	var out []string
	for _, t := range g.Transitions {
		if len(t.From) != 1 || t.From[0] != id {
			continue
		}
		to := make([]string, len(t.To))
		for i, target := range t.To {
			to[i] = string(target)
		}
		out = append(out, fmt.Sprintf("%s → %s", t.Trigger, strings.Join(to, ", ")))
	}
	if s, ok := g.Stage(id); ok && s.Type == domain.StageTypeParallel {
		if join, ok := g.FanIn(id); ok {
			out = append(out, fmt.Sprintf("all %s → %s", join.Trigger, join.To[0]))
		}
	}
	return strings.Join(out, "; ")
}
