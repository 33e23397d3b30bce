package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("RATE_LIMIT_PERMITS", "")
	t.Setenv("RATE_LIMIT_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 1, cfg.RateLimitPermits)
	assert.Equal(t, time.Second, cfg.RateLimitPeriod)
	assert.Equal(t, 5*time.Second, cfg.RateLimitTimeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("RATE_LIMIT_PERIOD", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "RATE_LIMIT_PERIOD")
}

func TestLoadPostgresNeedsURL(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadStoresMissingFile(t *testing.T) {
	stores, err := LoadStores(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Len(t, stores, 4)
}

func TestLoadStoresYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stores:
  - code: tnt
    base_url: https://www.tntsupermarket.com/
    active: true
    scraper_config:
      maxPages: 2
      categoryIds: [2876, 2877]
`), 0644))

	stores, err := LoadStores(path)
	require.NoError(t, err)
	require.Len(t, stores, 1)

	s := stores[0]
	assert.Equal(t, "TNT", s.Code)
	assert.Equal(t, "TNT", s.Name)
	assert.Equal(t, "https://www.tntsupermarket.com", s.BaseURL)
	assert.Equal(t, 2, s.ConfigInt("maxPages", 20))
	assert.Equal(t, []string{"2876", "2877"}, s.ConfigStrings("categoryIds"))
}

func TestLoadStoresDuplicateCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stores:\n  - code: TNT\n  - code: tnt\n"), 0644))

	_, err := LoadStores(path)
	assert.ErrorContains(t, err, "duplicate")
}
