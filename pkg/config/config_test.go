package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  listen: ":9000"
database:
  driver: sqlite
  sqlite:
    path: /var/lib/perfstor/runs.db
ingest:
  enabled: false
  concurrency: 2
`)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":9000", cfg.Server.Listen)
				assert.Equal(t, "/var/lib/perfstor/runs.db", cfg.Database.SQLite.Path)
				assert.Equal(t, 2, cfg.Ingest.Concurrency)
			},
		},
		{
			name: "string override - listen",
			envVars: map[string]string{
				"PERFSTOR_SERVER_LISTEN": ":7000",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":7000", cfg.Server.Listen)
			},
		},
		{
			name: "boolean override - ingest enabled",
			envVars: map[string]string{
				"PERFSTOR_INGEST_ENABLED": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Ingest.Enabled)
			},
		},
		{
			name: "integer override - postgres port",
			envVars: map[string]string{
				"PERFSTOR_DATABASE_POSTGRES_PORT": "6543",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 6543, cfg.Database.Postgres.Port)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWithoutFiles(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultDatabaseDriver, cfg.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Database.SQLite.Path)
	assert.Equal(t, DefaultIngestConcurrency, cfg.Ingest.Concurrency)
	assert.Equal(t, DefaultIngestPrefix, cfg.Ingest.Prefix)
	assert.Equal(t, DefaultExportFormat, cfg.Export.Format)
	assert.False(t, cfg.Storage.IsConfigured())
	require.NoError(t, cfg.Validate())
}

func TestLoad_MergesFilesInOrder(t *testing.T) {
	base := writeConfig(t, "base.yaml", `
server:
  listen: ":8080"
  cors_origins: ["https://perf.example.com"]
database:
  driver: postgres
  postgres:
    host: db.internal
    user: perfstor
`)
	override := writeConfig(t, "override.yaml", `
server:
  listen: ":8181"
database:
  postgres:
    password: secret
`)

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, ":8181", cfg.Server.Listen)
	assert.Equal(t, []string{"https://perf.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, "perfstor", cfg.Database.Postgres.User)
	assert.Equal(t, "secret", cfg.Database.Postgres.Password)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "bad.yaml", "server: [unclosed")

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)

		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "empty listen",
			mutate:  func(cfg *Config) { cfg.Server.Listen = "" },
			wantErr: "server.listen is required",
		},
		{
			name: "rate limit without budget",
			mutate: func(cfg *Config) {
				cfg.Server.RateLimit.Enabled = true
				cfg.Server.RateLimit.RequestsPerMinute = 0
			},
			wantErr: "requests_per_minute",
		},
		{
			name:    "unknown driver",
			mutate:  func(cfg *Config) { cfg.Database.Driver = "mysql" },
			wantErr: "unsupported driver",
		},
		{
			name: "both storage backends",
			mutate: func(cfg *Config) {
				cfg.Storage.S3.Enabled = true
				cfg.Storage.S3.Bucket = "runs"
				cfg.Storage.Local.Enabled = true
				cfg.Storage.Local.Path = "/tmp"
			},
			wantErr: "only one of s3 or local",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(cfg *Config) { cfg.Storage.S3.Enabled = true },
			wantErr: "s3.bucket is required",
		},
		{
			name:    "ingest without storage",
			mutate:  func(cfg *Config) { cfg.Ingest.Enabled = true },
			wantErr: "ingest requires a storage backend",
		},
		{
			name: "ingest with bad interval",
			mutate: func(cfg *Config) {
				cfg.Storage.Local.Enabled = true
				cfg.Storage.Local.Path = "/tmp"
				cfg.Ingest.Enabled = true
				cfg.Ingest.Interval = "soon"
			},
			wantErr: "ingest.interval",
		},
		{
			name:    "unknown export format",
			mutate:  func(cfg *Config) { cfg.Export.Format = "csv" },
			wantErr: "unsupported format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIngestConfig_IntervalDuration(t *testing.T) {
	d, err := (&IngestConfig{Interval: "90s"}).IntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = (&IngestConfig{Interval: "-1s"}).IntervalDuration()
	require.Error(t, err)
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "db",
		Port:     5432,
		User:     "perf",
		Password: "pw",
		Database: "perfstor",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=db port=5432 user=perf password=pw dbname=perfstor sslmode=disable",
		cfg.DSN(),
	)
}
