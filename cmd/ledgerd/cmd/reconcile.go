package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/trogers1052/trade-ledger-service/internal/database"
	"github.com/trogers1052/trade-ledger-service/internal/reconciler"
)

func newReconcileCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd.Context(), func(rec *reconciler.Reconciler, _ *database.DB) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")

				if userID == "" {
					summary, err := rec.RunForAllAccounts(cmd.Context())
					if err != nil {
						return err
					}
					return enc.Encode(summary)
				}

				res, err := rec.ReconcileOnce(cmd.Context(), userID)
				if encErr := enc.Encode(res); encErr != nil {
					return encErr
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "reconcile only this user (default all enabled accounts)")
	return cmd
}
