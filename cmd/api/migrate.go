package main

import (
	"fmt"

	"github.com/safar/fishmart/internal/config"
	"github.com/safar/fishmart/internal/database"
	"github.com/safar/fishmart/migrations"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or revert the embedded schema migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		db, err := database.NewConnection(cmd.Context(), &cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		applied, err := migrations.Run(cmd.Context(), db, direction)
		if err != nil {
			return err
		}

		for _, name := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations %s complete\n", direction)
		return nil
	},
}
