package main

import (
	"os"

	"github.com/aretw0/redline/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [paths...]",
	Short: "Check stage graph definitions",
	Long: `Compiles graph files (YAML or JSON) and reports every structural problem:
dangling targets, parallel blocks without branches or fan-in, unreachable
stages and missing terminal stages. Directories are scanned non-recursively.
Without paths, the graphs of the configured source are checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")
		if len(args) > 0 {
			return cli.ValidateFiles(os.Stdout, args, strict)
		}

		app, _, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.ValidateLoader(cmd.Context(), os.Stdout, app.Engine.Loader())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Reject unknown keys in graph files")
}
