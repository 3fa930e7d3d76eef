package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides,
	// e.g. PERFSTOR_SERVER_LISTEN.
	EnvPrefix = "PERFSTOR"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultDatabaseDriver is the default database driver.
	DefaultDatabaseDriver = "sqlite"

	// DefaultSQLitePath is the default SQLite database file.
	DefaultSQLitePath = "./perfstor.db"

	// DefaultIngestInterval is the default interval between ingest passes.
	DefaultIngestInterval = "60s"

	// DefaultIngestConcurrency is the default number of objects ingested
	// in parallel.
	DefaultIngestConcurrency = 4

	// DefaultIngestPrefix is the default storage prefix scanned for run files.
	DefaultIngestPrefix = "incoming"

	// DefaultExportPrefix is the default storage prefix for snapshots.
	DefaultExportPrefix = "exports"

	// DefaultExportFormat is the default snapshot encoding.
	DefaultExportFormat = "json"
)

// Config is the root configuration for perfstor.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Storage  StorageConfig  `yaml:"storage,omitempty" mapstructure:"storage"`
	Ingest   IngestConfig   `yaml:"ingest,omitempty" mapstructure:"ingest"`
	Export   ExportConfig   `yaml:"export,omitempty" mapstructure:"export"`
}

// defaults lists every known key so that viper resolves environment
// overrides even when the key is absent from all config files.
var defaults = map[string]any{
	"server.listen":                         DefaultListen,
	"server.cors_origins":                   []string{},
	"server.rate_limit.enabled":             false,
	"server.rate_limit.requests_per_minute": 120,

	"database.driver":            DefaultDatabaseDriver,
	"database.sqlite.path":       DefaultSQLitePath,
	"database.postgres.host":     "localhost",
	"database.postgres.port":     5432,
	"database.postgres.user":     "",
	"database.postgres.password": "",
	"database.postgres.database": "perfstor",
	"database.postgres.ssl_mode": "disable",

	"storage.s3.enabled":           false,
	"storage.s3.endpoint_url":      "",
	"storage.s3.region":            "",
	"storage.s3.bucket":            "",
	"storage.s3.access_key_id":     "",
	"storage.s3.secret_access_key": "",
	"storage.s3.force_path_style":  false,
	"storage.local.enabled":        false,
	"storage.local.path":           "",

	"ingest.enabled":     false,
	"ingest.interval":    DefaultIngestInterval,
	"ingest.concurrency": DefaultIngestConcurrency,
	"ingest.prefix":      DefaultIngestPrefix,

	"export.prefix": DefaultExportPrefix,
	"export.format": DefaultExportFormat,
}

// Load reads the given configuration files in order, merging each one over
// the previous, then applies PERFSTOR_* environment overrides. With no paths
// only defaults and environment variables are used.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	for i, path := range paths {
		v.SetConfigFile(path)

		read := v.MergeInConfig
		if i == 0 {
			read = v.ReadInConfig
		}

		if err := read(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_minute must be positive")
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if c.Ingest.Enabled {
		if !c.Storage.IsConfigured() {
			return fmt.Errorf("ingest requires a storage backend")
		}

		if _, err := c.Ingest.IntervalDuration(); err != nil {
			return fmt.Errorf("ingest.interval: %w", err)
		}
	}

	switch c.Export.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("export.format: unsupported format %q", c.Export.Format)
	}

	return nil
}

// IntervalDuration parses the ingest interval.
func (c *IngestConfig) IntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, err
	}

	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", c.Interval)
	}

	return d, nil
}
