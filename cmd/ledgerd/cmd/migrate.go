package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/trogers1052/trade-ledger-service/internal/config"
	"github.com/trogers1052/trade-ledger-service/internal/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down [steps]]",
		Short: "Apply or roll back ledger schema migrations",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) > 0 {
				direction = args[0]
			}

			steps := 1
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[1])
				}
				steps = n
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.New(cfg.Database.ConnectionString())
			if err != nil {
				return err
			}
			defer db.Close()

			switch direction {
			case "up":
				if err := db.Migrate(); err != nil {
					return err
				}
				cmd.Println("migrations applied")
			case "down":
				if err := db.MigrateDown(steps); err != nil {
					return err
				}
				cmd.Printf("rolled back %d migration(s)\n", steps)
			default:
				return fmt.Errorf("unknown direction %q, want up or down", direction)
			}
			return nil
		},
	}
	return cmd
}
