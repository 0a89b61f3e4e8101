package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1000, cfg.Search.Limit)
	assert.Equal(t, 20, cfg.Search.PageSize)
	assert.Equal(t, 2.0, cfg.Search.NodeIDBoost)
	assert.False(t, cfg.Search.Prefix)
	assert.Equal(t, 5*time.Minute, cfg.Collect.Timeout)
	assert.Equal(t, int64(10*1024*1024), cfg.Collect.MaxFileSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explorer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
report: out/report.json
search:
  page_size: 50
  fuzzy: 0.2
  prefix: true
collect:
  timeout: 30s
  patterns: ["tests/**"]
watch:
  debounce: 1s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "out/report.json", cfg.Report)
	assert.Equal(t, 50, cfg.Search.PageSize)
	assert.Equal(t, 1000, cfg.Search.Limit, "should keep defaults for missing keys")
	assert.Equal(t, 0.2, cfg.Search.Fuzzy)
	assert.True(t, cfg.Search.Prefix)
	assert.Equal(t, 30*time.Second, cfg.Collect.Timeout)
	assert.Equal(t, []string{"tests/**"}, cfg.Collect.Patterns)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explorer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  page_size: 50\n"), 0o644))

	t.Setenv("EXPLORER_SEARCH_PAGE_SIZE", "7")
	t.Setenv("EXPLORER_COLLECT_EXCLUDE", "fixtures,data")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.PageSize)
	assert.Equal(t, []string{"fixtures", "data"}, cfg.Collect.Exclude)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("should fail on a missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorContains(t, err, "does not exist")
	})

	t.Run("should fail on invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("search: [\n"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("should panic in MustLoad", func(t *testing.T) {
		assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
	})
}

func TestFetchPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "from-env.yaml")

	assert.Equal(t, "flag.yaml", FetchPath("flag.yaml"))
	assert.Equal(t, "from-env.yaml", FetchPath(""))
}

func TestConfig_Level(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "warn"}).Level())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "loud"}).Level())
}
