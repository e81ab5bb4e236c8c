package cmd

import (
	"github.com/spf13/cobra"
	"github.com/trogers1052/trade-ledger-service/internal/app"
	"github.com/trogers1052/trade-ledger-service/internal/config"
)

func newServeCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciler, fill consumer and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			fxApp := app.New(cfg, app.Options{Migrate: !skipMigrate})
			if err := fxApp.Err(); err != nil {
				return err
			}
			// Blocks until SIGINT or SIGTERM, then runs the stop hooks
			fxApp.Run()
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply pending migrations on start")
	return cmd
}
