package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		pg, err := openPostgres(cfg, logger)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.Ping(cmd.Context()); err != nil {
			return err
		}
		return pg.Migrate(cmd.Context())
	},
}
