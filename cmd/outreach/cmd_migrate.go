package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"outreach-engine/internal/common/config"
	"outreach-engine/internal/common/database"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/store"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the templates, targets and audit_log tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			st, closeDB, err := openStore(cfg.Database, log)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

func openStore(cfg config.DatabaseConfig, log logger.Logger) (*store.SQLStore, func() error, error) {
	client, err := database.OpenSQL(cfg)
	if err != nil {
		return nil, nil, err
	}
	dialect := store.DialectPostgres
	if cfg.Driver == config.DriverSQLite {
		dialect = store.DialectSQLite
	}
	return store.NewSQLStore(client.GetDB(), dialect, log), client.Close, nil
}
