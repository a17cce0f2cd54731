package deploy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "domain: voice.example.com\nemail: ops@example.com\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "voice.example.com", cfg.Domain)
	assert.Equal(t, "ops@example.com", cfg.Email)
	assert.Equal(t, "sendora", cfg.AppName)
	assert.Equal(t, 8000, cfg.AppPort)
	assert.Equal(t, 6379, cfg.RedisPort)
	assert.Equal(t, "/opt/sendora", cfg.InstallDir)
	assert.Equal(t, "3.10", cfg.MinPython)
	assert.Contains(t, cfg.SystemPackages, "nginx")
	assert.Contains(t, cfg.SystemPackages, "redis-server")
	assert.Contains(t, cfg.SystemPackages, "certbot")
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
domain: voice.example.com
email: ops@example.com
app_name: callcenter
app_port: 9000
min_memory_mb: 2048
system_packages: [python3, nginx]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "callcenter", cfg.AppName)
	assert.Equal(t, 9000, cfg.AppPort)
	assert.Equal(t, uint64(2048), cfg.MinMemoryMB)
	assert.Equal(t, []string{"python3", "nginx"}, cfg.SystemPackages)
}

func TestLoadConfig_MissingEmailFails(t *testing.T) {
	path := writeConfigFile(t, "domain: voice.example.com\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Email")
}

func TestLoadConfig_InvalidEmailFails(t *testing.T) {
	path := writeConfigFile(t, "domain: voice.example.com\nemail: not-an-email\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfig_MissingFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestConfig_UnitName(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "sendora.service", cfg.UnitName())
}

func TestConfig_HealthURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Domain = "voice.example.com"
	assert.Equal(t, "https://voice.example.com/health", cfg.HealthURL())
}

func TestResolveTemplatesDir_ExplicitWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TemplatesDir = "/somewhere/else"
	assert.Equal(t, "/somewhere/else", cfg.ResolveTemplatesDir())
}
