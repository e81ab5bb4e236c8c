package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trogers1052/trade-ledger-service/internal/app"
	"github.com/trogers1052/trade-ledger-service/internal/config"
	"github.com/trogers1052/trade-ledger-service/internal/database"
	"github.com/trogers1052/trade-ledger-service/internal/reconciler"
	"go.uber.org/fx"
)

var rootCmd = &cobra.Command{
	Use:   "ledgerd",
	Short: "Trade ledger reconciler and performance service",
	Long: `ledgerd keeps an authoritative trade ledger in sync with brokerage fills.

It polls every connected brokerage account, books each filled order exactly
once as a trade entry or exit, and serves risk sizing and performance
analytics over HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newReconcileCmd(),
		newAccountCmd(),
	)
}

// withCore starts the reconciliation graph for a one-shot command and stops
// it when fn returns.
func withCore(ctx context.Context, fn func(rec *reconciler.Reconciler, db *database.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var rec *reconciler.Reconciler
	var db *database.DB
	fxApp := fx.New(
		fx.NopLogger,
		fx.Supply(cfg, app.Options{}),
		app.Core(),
		fx.Populate(&rec, &db),
	)
	if err := fxApp.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer fxApp.Stop(context.WithoutCancel(ctx))

	return fn(rec, db)
}
