package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/aretw0/redline/internal/cli"
	"github.com/aretw0/redline/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the review engine behind a JSON HTTP API with bearer-token
authentication, an OpenAPI document at /openapi.yaml, server-sent workflow
events and Prometheus metrics at /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cfg, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		port := cfg.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return fmt.Errorf("failed to listen on port %d: %w", port, err)
		}

		if tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(os.Stdout, "review workflow server "+versionString())
		}
		if len(cfg.Identities) == 0 {
			app.Logger.Warn("No identities configured; every authenticated route will answer 401")
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()
		if err := cli.Serve(ctx, app, ln, os.Stdout); err != nil {
			return err
		}
		if sig := ctx.Signal(); sig != nil {
			app.Logger.Debug("Shutdown requested", "signal", sig)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides the config)")
}
