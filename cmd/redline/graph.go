package main

import (
	"os"

	"github.com/aretw0/redline/internal/cli"
	"github.com/aretw0/redline/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <graph-id>",
	Short: "Render a stage graph",
	Long: `Prints a stage graph as a Mermaid flowchart (default) or as a Markdown
stage table. With --instance, the Mermaid output highlights the stages that
workflow instance has visited and the ones it is waiting on.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		instance, _ := cmd.Flags().GetString("instance")

		app, _, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.RenderGraph(cmd.Context(), os.Stdout, app, args[0], instance, format, tui.IsTerminal(os.Stdout))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("format", "f", cli.FormatMermaid, "Output format: mermaid or markdown")
	graphCmd.Flags().String("instance", "", "Workflow instance to overlay (mermaid only)")
}
