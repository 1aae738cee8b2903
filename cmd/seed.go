package main

import (
	"github.com/spf13/cobra"

	"storefront-service/internal/catalog"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load categories and products from a YAML catalog file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		path := seedFile
		if path == "" {
			path = cfg.Catalog.SeedFile
		}
		seed, err := catalog.LoadSeedFile(path)
		if err != nil {
			return err
		}

		pg, err := openPostgres(cfg, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		return catalog.ApplySeed(cmd.Context(), pg, pg, seed, logger)
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "Catalog file (defaults to CATALOG_SEED_FILE)")
}
