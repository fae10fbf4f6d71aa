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
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://animefire.plus", cfg.Sites.BaseURL)
	assert.Equal(t, 5, cfg.Session.MaxRedirects)
	assert.Equal(t, 25*time.Second, cfg.Unified.Timeout)
	assert.Equal(t, "id", cfg.Unified.Param)
	assert.Equal(t, []string{"lightspeedst.net", "blogger.com", "googlevideo.com"}, cfg.Resolver.TrustedHosts)
	assert.Equal(t, 24*time.Hour, cfg.Relay.ImageMaxAge)
	assert.True(t, cfg.Relay.BlockPrivate)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	file := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
[server]
port = 9090

[unified]
endpoint = "https://unified.example/api"
timeout = "3s"

[relay]
max_bytes = 1024
referers = ["lightspeedst.net=https://animefire.plus/", "Blogger.com = https://www.blogger.com/"]
`), 0o600))

	t.Setenv("ANISTREAM_SESSION_MAX_REDIRECTS", "7")
	t.Setenv("ANISTREAM_LOG_LEVEL", "debug")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://unified.example/api", cfg.Unified.Endpoint)
	assert.Equal(t, 3*time.Second, cfg.Unified.Timeout)
	assert.Equal(t, int64(1024), cfg.Relay.MaxBytes)
	referers, err := cfg.RefererMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"lightspeedst.net": "https://animefire.plus/",
		"blogger.com":      "https://www.blogger.com/",
	}, referers)
	assert.Equal(t, 7, cfg.Session.MaxRedirects)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ANISTREAM_SERVER_PORT", "70000")

	_, err := Load("")
	assert.Error(t, err)
}

func TestFieldEnv(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ANISTREAM_RELAY_IMAGE_MAX_AGE", Default["relay.image_max_age"].Env())
	assert.Contains(t, Keys(), "store.path")
	assert.IsIncreasing(t, Keys())
}

func TestLoadRejectsMalformedReferer(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ANISTREAM_RELAY_REFERERS", "no-separator")

	_, err := Load("")
	assert.Error(t, err)
}

func TestDefaultsIgnoreEnvironment(t *testing.T) {
	t.Setenv("ANISTREAM_SERVER_PORT", "9999")

	cfg := Defaults()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 25*time.Second, cfg.Unified.Timeout)
}
