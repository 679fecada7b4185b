package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/strongbox"
	"github.com/sagarc03/strongbox/database"
	strongboxhttp "github.com/sagarc03/strongbox/http"
	"github.com/sagarc03/strongbox/keybackend"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "STRONGBOX"

type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for strongbox.
type Config struct {
	Server   ServerConfig          `mapstructure:"server"`
	Service  ServiceConfig         `mapstructure:"service"`
	Database database.Config       `mapstructure:"database"`
	Storage  StorageConfig         `mapstructure:"storage"`
	Keys     keybackend.KeysConfig `mapstructure:"keys"`
	Auth     AuthConfig            `mapstructure:"auth"`
	Metrics  MetricsConfig         `mapstructure:"metrics"`
	Log      LogConfig             `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`
	// PublicURL is the externally visible origin capabilities are bound to.
	PublicURL      string                   `mapstructure:"public_url" validate:"required,url"`
	MaxUploadBytes int64                    `mapstructure:"max_upload_bytes" validate:"min=0"`
	ShutdownGrace  int                      `mapstructure:"shutdown_grace" validate:"min=0"`
	CORS           strongboxhttp.CORSConfig `mapstructure:"cors"`
}

type ServiceConfig struct {
	ExpiryMinutes    int `mapstructure:"expiry_minutes" validate:"min=1,max=10080"`
	CleanupTimeout   int `mapstructure:"cleanup_timeout" validate:"min=1"`
	StatsConcurrency int `mapstructure:"stats_concurrency" validate:"min=1"`
}

type StorageConfig struct {
	Root string `mapstructure:"root" validate:"required"`
}

// AuthConfig configures bearer token verification for owner routes.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	Leeway    int    `mapstructure:"leeway" validate:"min=0"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required,startswith=/"`
}

type LogConfig struct {
	Env   string `mapstructure:"env" validate:"required,oneof=dev prod"`
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// ServiceConfig converts the loaded settings into the core service configuration.
func (c *Config) ServiceConfig() strongbox.ServiceConfig {
	return strongbox.ServiceConfig{
		PublicURL:               strings.TrimRight(c.Server.PublicURL, "/"),
		CapabilityExpiryMinutes: c.Service.ExpiryMinutes,
		CleanupTimeout:          time.Duration(c.Service.CleanupTimeout) * time.Second,
		StatsConcurrency:        c.Service.StatsConcurrency,
	}
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"db-type":      "database.type",
	"db-dsn":       "database.dsn",
	"storage-root": "storage.root",
	"port":         "server.port",
	"public-url":   "server.public_url",
	"log-level":    "log.level",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5708)
	v.SetDefault("server.public_url", "http://localhost:5708")
	v.SetDefault("server.max_upload_bytes", 0) // 0 means no limit
	v.SetDefault("server.shutdown_grace", 10)  // seconds
	v.SetDefault("server.cors.enabled", false)

	v.SetDefault("service.expiry_minutes", 5)
	v.SetDefault("service.cleanup_timeout", 30) // seconds
	v.SetDefault("service.stats_concurrency", 8)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "strongbox.db")
	v.SetDefault("database.tables.buckets", "strongbox_buckets")
	v.SetDefault("database.tables.objects", "strongbox_objects")

	v.SetDefault("storage.root", "./data")

	v.SetDefault("keys.signing", "")
	v.SetDefault("keys.file", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.leeway", 0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.env", "dev")
	v.SetDefault("log.level", "info")
}

// Load reads configuration and returns a validated Config struct.
// Precedence from highest to lowest is flags, STRONGBOX_ environment
// variables, config files (later files win), then defaults. When no files are
// given ./config.yaml is read if present. flags may be nil.
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	readConfigFiles(v, configFiles)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		bindFlags(v, flags)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// readConfigFiles merges files into v. Unreadable files are logged and
// skipped so that env and flags can still supply a complete configuration.
func readConfigFiles(v *viper.Viper, files []string) {
	if len(files) == 0 {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "err", err)
		}
		return
	}

	for i, file := range files {
		v.SetConfigFile(file)

		read := v.MergeInConfig
		if i == 0 {
			read = v.ReadInConfig
		}
		if err := read(); err != nil {
			slog.Warn("error reading config file", "file", file, "err", err)
		}
	}
}

// Validate runs struct tag validation and the checks tags cannot express.
// The signing key is not required here so that commands which never mint,
// such as migrate, start without key material.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if err := c.Database.Tables.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	return nil
}
