package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/redline/internal/presentation/graph"
	"github.com/aretw0/redline/internal/presentation/tui"
)

// Graph output formats.
const (
	FormatMermaid  = "mermaid"
	FormatMarkdown = "markdown"
)

// RenderGraph writes graphID in format. A non-empty instanceID overlays the
// visited and active stages of that instance (mermaid only). Markdown is
// styled through glamour when tty is true.
func RenderGraph(ctx context.Context, w io.Writer, app *App, graphID, instanceID, format string, tty bool) error {
	g, err := app.Engine.Graph(ctx, graphID)
	if err != nil {
		return err
	}

	switch format {
	case FormatMermaid, "":
		var overlay *graph.GraphOverlay
		if instanceID != "" {
			inst, err := app.Engine.WorkflowStatus(ctx, instanceID)
			if err != nil {
				return err
			}
			if inst.GraphID != g.ID {
				return fmt.Errorf("instance %s runs graph %s, not %s", inst.ID, inst.GraphID, g.ID)
			}
			overlay = graph.OverlayFor(inst)
		}
		_, err = io.WriteString(w, graph.GenerateMermaid(g, overlay))
		return err

	case FormatMarkdown:
		render, err := tui.NewRenderer(tty)
		if err != nil {
			return err
		}
		out, err := render(graph.Markdown(g))
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	}
	return fmt.Errorf("unknown format %q (want %s or %s)", format, FormatMermaid, FormatMarkdown)
}
