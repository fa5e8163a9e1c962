package main

import (
	"github.com/spf13/cobra"

	"github.com/Skotchmaster/shop_auth/internal/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the users schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := db.Migrate(cmd.Context(), a.db); err != nil {
				return err
			}
			a.log.Info("migration complete")
			return nil
		},
	}
}
