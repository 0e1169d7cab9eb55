package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 50, cfg.BufferSize)
	assert.Equal(t, 30*time.Second, cfg.FlushInterval)
	assert.Equal(t, 45, cfg.StreamRPM)
	assert.Equal(t, 100, cfg.ListingRPM)
	assert.Equal(t, 100, cfg.EnrichRPM)
	assert.Equal(t, DefaultSubreddits, cfg.Subreddits)
	assert.Equal(t, DefaultBrands, cfg.Brands)
	assert.True(t, cfg.SourceEnabled("listing"))
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SUBREDDITS", "aves, kandi ,")
	t.Setenv("FLUSH_INTERVAL", "45")
	t.Setenv("BUFFER_SIZE", "10")
	t.Setenv("DEBUG", "true")
	t.Setenv("SOURCES", "listing")
	t.Setenv("BRANDS", "badinka=badinka;rave=rave(?:wear)?")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"aves", "kandi"}, cfg.Subreddits)
	assert.Equal(t, 45*time.Second, cfg.FlushInterval)
	assert.Equal(t, 10, cfg.BufferSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.SourceEnabled("streaming"))
	assert.Equal(t, map[string]string{"badinka": "badinka", "rave": "rave(?:wear)?"}, cfg.Brands)
}

func TestLoad_BrandsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brands.yaml")
	require.NoError(t, os.WriteFile(path, []byte("brands:\n  badinka: '[@#]?badinka'\n  edc: 'edc(?:orlando)?'\n"), 0o644))
	t.Setenv("BRANDS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"badinka": "[@#]?badinka", "edc": "edc(?:orlando)?"}, cfg.Brands)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "Unknown backend", env: map[string]string{"STORE_BACKEND": "sqlite"}},
		{name: "Postgres without DSN", env: map[string]string{"STORE_BACKEND": "postgres"}},
		{name: "OpenAI without key", env: map[string]string{"SENTIMENT_PROVIDER": "openai"}},
		{name: "Sub-second flush", env: map[string]string{"FLUSH_INTERVAL": "100ms"}},
		{name: "Unknown source", env: map[string]string{"SOURCES": "listing,twitter"}},
		{name: "Email without SMTP", env: map[string]string{"NOTIFICATION_EMAIL": "ops@example.com"}},
		{name: "Malformed brands", env: map[string]string{"BRANDS": "badinka"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
