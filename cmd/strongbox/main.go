package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sagarc03/strongbox/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "strongbox",
	Short:   "Owner-scoped object storage with presigned download links",
	Long: `Strongbox stores objects in owner-scoped buckets on the local filesystem,
keeps their metadata in SQLite or PostgreSQL, and hands out HMAC-signed,
time-limited download links.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFiles, _ := cmd.Flags().GetStringSlice("config")

		cfg, err := config.Load(configFiles, cmd.Flags())
		if err != nil {
			return err
		}

		setupLogging(cfg.Log)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSlice("config", nil, "config file paths, later files override earlier ones (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("db-type", "", "database type: sqlite, postgres (env: STRONGBOX_DATABASE_TYPE)")
	rootCmd.PersistentFlags().String("db-dsn", "", "database connection string (env: STRONGBOX_DATABASE_DSN)")
	rootCmd.PersistentFlags().String("storage-root", "", "storage root directory (env: STRONGBOX_STORAGE_ROOT)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (env: STRONGBOX_LOG_LEVEL)")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
