package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/strongbox/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the metadata tables and validate their schema",
	Long: `Create the buckets and objects tables if they do not exist, then check
that the live schema matches what strongbox expects. Safe to run repeatedly.`,
	RunE: runMigrate,
}

var migrateCheckOnly bool

func init() {
	migrateCmd.Flags().BoolVar(&migrateCheckOnly, "check", false, "only validate the schema, do not create anything")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg, !migrateCheckOnly)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if !migrateCheckOnly {
		if err := db.Validate(ctx); err != nil {
			return fmt.Errorf("validate database schema: %w", err)
		}
	}

	slog.Info("database schema is up to date",
		"buckets", cfg.Database.Tables.Buckets,
		"objects", cfg.Database.Tables.Objects,
	)
	return nil
}
