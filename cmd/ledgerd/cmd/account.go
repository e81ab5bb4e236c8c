package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/trogers1052/trade-ledger-service/internal/database"
	"github.com/trogers1052/trade-ledger-service/internal/models"
	"github.com/trogers1052/trade-ledger-service/internal/reconciler"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage connected brokerage accounts",
	}
	cmd.AddCommand(newAccountSetCmd())
	return cmd
}

func newAccountSetCmd() *cobra.Command {
	var (
		acct     models.BrokerCredentials
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or replace a user's brokerage credentials",
		Long: `Create or replace a user's brokerage credentials.

The secret is read from BROKER_API_SECRET so it does not end up in shell history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			acct.APISecret = os.Getenv("BROKER_API_SECRET")
			if acct.APISecret == "" {
				return errors.New("BROKER_API_SECRET must be set")
			}
			acct.Enabled = !disabled

			return withCore(cmd.Context(), func(_ *reconciler.Reconciler, db *database.DB) error {
				if err := db.UpsertBrokerAccount(cmd.Context(), &acct); err != nil {
					return err
				}
				cmd.Printf("account %s saved (enabled=%t)\n", acct.UserID, acct.Enabled)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&acct.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&acct.APIKeyID, "key-id", "", "brokerage API key id")
	cmd.Flags().StringVar(&acct.BaseURL, "base-url", "", "brokerage API base URL (default BROKER_BASE_URL)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "store the account without reconciling it")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("key-id")
	return cmd
}
