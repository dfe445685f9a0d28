// Package graph renders stage graphs for humans: Mermaid flowcharts and
// Markdown stage tables.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/redline/pkg/domain"
)

// GraphOverlay contains instance state to visualize on the graph.
type GraphOverlay struct {
	VisitedStages []domain.StageID
	ActiveStages  []domain.StageID
}

// OverlayFor builds an overlay from the history and active set of inst.
func OverlayFor(inst *domain.WorkflowInstance) *GraphOverlay {
	if inst == nil {
		return nil
	}
	o := &GraphOverlay{ActiveStages: inst.Active}
	for _, rec := range inst.History {
		o.VisitedStages = append(o.VisitedStages, rec.From...)
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart for g.
// It applies semantic styling:
// - Start: ((Circle))
// - Terminal: ([Stadium])
// - Parallel: subgraph wrapping its branches
// - Default: [Rectangle]
// Reject transitions are dotted. Fan-outs point at the parallel subgraph and
// fan-ins leave from it.
func GenerateMermaid(g *domain.StageGraph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, s := range g.Stages {
		switch {
		case s.Type == domain.StageTypeParallel:
			sb.WriteString(fmt.Sprintf("    subgraph %s[\"%s\"]\n", sanitizeMermaidID(string(s.ID)), label(s)))
			for _, child := range g.Children(s.ID) {
				c, _ := g.Stage(child)
				sb.WriteString("    " + node(g, c))
			}
			sb.WriteString("    end\n")
		case s.IsParallelBranch:
			// Rendered inside the parent subgraph.
		default:
			sb.WriteString(node(g, s))
		}
	}

	for _, t := range g.Transitions {
		from, to := endpoint(g, t.From), endpoint(g, t.To)
		arrow := fmt.Sprintf("-- \"%s\" -->", t.Trigger)
		if t.Trigger == domain.ActionReject {
			arrow = fmt.Sprintf("-. \"%s\" .->", t.Trigger)
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", from, arrow, to))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast on both themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		active := make(map[string]bool)
		for _, id := range overlay.ActiveStages {
			active[sanitizeMermaidID(string(id))] = true
		}
		seen := make(map[string]bool)
		for _, id := range overlay.VisitedStages {
			safeID := sanitizeMermaidID(string(id))
			if safeID == "" || seen[safeID] || active[safeID] {
				continue
			}
			seen[safeID] = true
			sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
		}
		for _, id := range overlay.ActiveStages {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(string(id))))
		}
	}

	return sb.String()
}

func node(g *domain.StageGraph, s domain.StageNode) string {
	opener, closer := "[", "]"
	switch {
	case s.ID == g.StartStageID:
		opener, closer = "((", "))"
	case s.Type == domain.StageTypeTerminal:
		opener, closer = "([", "])"
	}
	return fmt.Sprintf("    %s%s\"%s\"%s\n", sanitizeMermaidID(string(s.ID)), opener, label(s), closer)
}

func label(s domain.StageNode) string {
	name := s.Name
	if name == "" {
		name = string(s.ID)
	}
	name = strings.ReplaceAll(name, "\"", "'")
	if s.AssignedRole != "" {
		return fmt.Sprintf("%s <br/> %s", name, s.AssignedRole)
	}
	return name
}

// endpoint collapses the branch set of a fan-out or fan-in to its parent.
func endpoint(g *domain.StageGraph, ids []domain.StageID) string {
	if len(ids) > 1 {
		if s, ok := g.Stage(ids[0]); ok && s.ParentStageID != "" {
			return sanitizeMermaidID(string(s.ParentStageID))
		}
	}
	if len(ids) == 0 {
		return ""
	}
	return sanitizeMermaidID(string(ids[0]))
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
