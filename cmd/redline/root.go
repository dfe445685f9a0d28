package main

import (
	"fmt"
	"os"

	"github.com/aretw0/redline/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "redline",
	Short: "Redline runs document review workflows and merges reviewer feedback",
	Long: `Redline moves documents through staged review graphs (draft, gatekeeper,
parallel expert review, sign-off, publication) and merges anchored reviewer
feedback into new document versions, detecting overlapping edits as conflicts.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default ./"+cli.DefaultConfigFile+" when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides the config)")
}

// loadApp reads the config named by the persistent flags and builds the engine.
func loadApp(cmd *cobra.Command) (*cli.App, *cli.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cli.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	logger, err := cli.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return app, cfg, nil
}
