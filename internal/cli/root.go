package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/abacus/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "abacus",
	Short: "A/B experimentation engine",
	Long: `abacus runs A/B experiments: it assigns users to variants, records
conversion events, and decides when a variant has won.

Run "abacus migrate" once before first use.`,
	SilenceUsage:      true,
	PersistentPreRunE: openApp,
}

// app is opened before every command runs and closed by Execute.
var app *AppContext

// appFactory builds the AppContext for a command run.
var appFactory = func(ctx context.Context) (*AppContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewAppContext(ctx, cfg)
}

func openApp(cmd *cobra.Command, args []string) error {
	if app != nil {
		return nil
	}
	a, err := appFactory(cmd.Context())
	if err != nil {
		return err
	}
	app = a
	return nil
}

// Execute runs the root command and cancels its context on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if app != nil {
		if cerr := app.Close(); cerr != nil {
			fmt.Fprintln(os.Stderr, "warning:", cerr)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(serveCmd)
}
