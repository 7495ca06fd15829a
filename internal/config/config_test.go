package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DESPACHO_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000", cfg.API.BaseURL)
	require.Equal(t, 3, cfg.API.RetryAttempts)
	require.Equal(t, 5*time.Second, cfg.API.RetryDelay)
	require.Equal(t, 100, cfg.UI.PerPage)
	require.Equal(t, 500*time.Millisecond, cfg.UI.SearchDebounce)
	require.False(t, cfg.UI.FilterResetsPage)
	require.Equal(t, "local", cfg.Exports.Driver)
	require.Equal(t, filepath.Join(home, ".local", "share", "despacho", "despacho.db"), cfg.Database.Path)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DESPACHO_CONFIG", "")
	t.Setenv("DESPACHO_API_BASE_URL", "https://painel.example.com/")
	t.Setenv("DESPACHO_UI_FILTER_RESETS_PAGE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://painel.example.com", cfg.API.BaseURL)
	require.True(t, cfg.UI.FilterResetsPage)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	t.Setenv("HOME", dir)
	t.Setenv("DESPACHO_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	cfg.UI.FilterResetsPage = true
	cfg.API.BaseURL = "http://10.0.0.5:5000"
	require.NoError(t, Save(cfg))

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := Load()
	require.NoError(t, err)
	require.True(t, again.UI.FilterResetsPage)
	require.Equal(t, "http://10.0.0.5:5000", again.API.BaseURL)
	require.Equal(t, 30*time.Second, again.API.Timeout)
}
