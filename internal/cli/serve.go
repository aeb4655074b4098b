package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/abacus/internal/migrate"
	"github.com/emiliopalmerini/abacus/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the JSON HTTP API. Pending migrations are applied first.

Examples:
  abacus serve              # Listen on ABACUS_PORT (default 8080)
  abacus serve --port 3000  # Listen on port 3000`,
	RunE: runServe,
}

var servePort int

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides ABACUS_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := migrate.RunAll(ctx, app.DB); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	port := app.Config.Port
	if servePort != 0 {
		port = servePort
	}

	server := web.NewServer(app.Services, app.Services.Calculator, app.Config.Stats.BaseAlpha, app.Logger)
	return server.Start(ctx, port)
}
