package database

import (
	"context"
	"fmt"

	"github.com/sagarc03/strongbox"
	"github.com/sagarc03/strongbox/database/postgres"
	"github.com/sagarc03/strongbox/database/sqlite"
)

// Database is the lifecycle surface shared by the metadata backends.
type Database interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Validate(ctx context.Context) error
	DropTables(ctx context.Context) error
	Store() strongbox.MetaDataStore
	Close() error
}

var (
	_ Database = (*postgres.DB)(nil)
	_ Database = (*sqlite.DB)(nil)
)

// Config holds the configuration for connecting to a metadata backend.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string `mapstructure:"type" validate:"required,oneof=sqlite postgres"`
	// DSN is the data source name (connection string)
	DSN string `mapstructure:"dsn" validate:"required"`
	// Tables names the buckets and objects tables
	Tables strongbox.Tables `mapstructure:"tables"`
}

// Connect opens the configured backend. It does not migrate; callers decide
// between Migrate and Validate.
func Connect(ctx context.Context, cfg Config) (Database, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.Connect(ctx, cfg.DSN, cfg.Tables)
	case "postgres":
		return postgres.Connect(ctx, cfg.DSN, cfg.Tables)
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}
}
