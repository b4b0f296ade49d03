package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Alias1177/MerchantScope/internal/config"
	"github.com/Alias1177/MerchantScope/internal/database"
	"github.com/Alias1177/MerchantScope/internal/source/memory"
)

// newSeedCmd loads a JSON records file into the warehouse
func newSeedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the transactions table and load records from --fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.FixturePath == "" {
				return fmt.Errorf("--fixture or FIXTURE_PATH is required")
			}

			ctx := cmd.Context()
			var db *database.DB
			switch cfg.Source {
			case config.SourceWarehouse:
				db, err = database.New(ctx, cfg.DB)
			case config.SourceSQLite:
				db, err = database.NewSQLite(ctx, cfg.SQLitePath)
			default:
				return fmt.Errorf("seed needs a warehouse or sqlite source, got %q", cfg.Source)
			}
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := memory.ReadFile(cfg.FixturePath)
			if err != nil {
				return err
			}

			if err := db.EnsureSchema(ctx); err != nil {
				return err
			}
			if err := db.InsertRecords(ctx, records); err != nil {
				return err
			}

			log.Info().Int("records", len(records)).Str("source", cfg.Source).Msg("Seeded warehouse")
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d records\n", len(records))
			return nil
		},
	}
}
