package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"DB_TYPE", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"MEILISEARCH_HOST", "MEILISEARCH_KEY", "PROVIDER_BASE_URL", "PROVIDER_API_KEY",
		"PORT", "LOG_LEVEL", "TZ_NAME", "SCAN_CONCURRENCY",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 45*time.Second, cfg.Scanner.GetPropertyTimeout())
	assert.Equal(t, 24*time.Hour, cfg.Scanner.GetSnapshotResolution())
	assert.Equal(t, 20*time.Second, cfg.Provider.GetTimeout())
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, 4, cfg.Scanner.Concurrency)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  type: postgres
provider:
  kind: page
  name: booking-page
scanner:
  concurrency: 8
  property_timeout: 30s
pricing:
  default_currency: TRY
rooms:
  synonyms:
    deluxe: [kral dairesi]
reconcile:
  max_duplicates: 50
timezone: Europe/Istanbul
`), 0o644))

	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("SCAN_CONCURRENCY", "2")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, 6543, cfg.Database.Postgres.Port)
	assert.Equal(t, "localhost", cfg.Database.MySQL.Host)
	assert.Equal(t, "page", cfg.Provider.Kind)
	assert.Equal(t, 2, cfg.Scanner.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Scanner.GetPropertyTimeout())
	assert.Equal(t, "TRY", cfg.Pricing.DefaultCurrency)
	assert.Equal(t, "Europe/Istanbul", cfg.Location().String())
	assert.Equal(t, []string{"kral dairesi"}, cfg.Rooms.Synonyms["deluxe"])
	assert.Equal(t, 50, cfg.Reconcile.MaxDuplicates)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "unknown database", yaml: "database:\n  type: oracle\n"},
		{name: "zero concurrency", yaml: "scanner:\n  concurrency: 0\n"},
		{name: "bad timeout", yaml: "scanner:\n  property_timeout: soon\n"},
		{name: "bad currency", yaml: "pricing:\n  default_currency: EURO\n"},
		{name: "bad timezone", yaml: "timezone: Mars/Olympus\n"},
		{name: "threshold above one", yaml: "rooms:\n  similarity_threshold: 1.5\n"},
		{name: "zero duplicate limit", yaml: "reconcile:\n  max_duplicates: 0\n"},
		{name: "non numeric env", env: map[string]string{"SCAN_CONCURRENCY": "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}
