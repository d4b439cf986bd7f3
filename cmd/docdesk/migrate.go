package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gmsas95/docdesk/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, st, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer st.Close()

		if err := store.Migrate(st.DB()); err != nil {
			return err
		}
		fmt.Printf("Schema up to date at %s\n", cfg.Storage.SQLitePath)
		return nil
	},
}
