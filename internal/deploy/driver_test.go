package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.Domain = "voice.example.com"
	cfg.Email = "ops@example.com"
	cfg.InstallDir = filepath.Join(root, "opt", "sendora")
	cfg.ReleaseDir = filepath.Join(root, "opt", "sendora", "app")
	cfg.VenvDir = filepath.Join(root, "opt", "sendora", "venv")
	cfg.LogDir = filepath.Join(root, "var", "log", "sendora")
	cfg.NginxSitesDir = filepath.Join(root, "etc", "nginx", "sites-available")
	cfg.NginxEnabledDir = filepath.Join(root, "etc", "nginx", "sites-enabled")
	cfg.RedisConfPath = filepath.Join(root, "etc", "redis", "redis.conf")
	cfg.SystemdDir = filepath.Join(root, "etc", "systemd", "system")
	cfg.TemplatesDir = filepath.Join("..", "..", "templates")
	return cfg
}

func newTestDriver(t *testing.T, opts Options, run Runner) (*Driver, Config) {
	t.Helper()
	cfg := testConfig(t)
	driver := NewDriver(cfg, opts, "test-run", run, zap.NewNop(), nil)
	driver.pre.geteuid = func() int { return 0 }
	driver.pingCache = func(port int, secret Secret) func(context.Context) error {
		return func(context.Context) error { return nil }
	}
	driver.ver.pollInterval = time.Millisecond
	driver.ver.maxPolls = 1
	return driver, cfg
}

func TestDriverRun_FreshHost(t *testing.T) {
	run := newFakeRunner()
	driver, cfg := newTestDriver(t, Options{}, run)

	state, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageDone, state.Stage)
	assert.Nil(t, state.Backup)
	assert.Empty(t, state.Errors)

	// 32-byte-derived secret, printed in the summary for operator capture.
	require.Len(t, state.Secret.Value(), 43)
	assert.Contains(t, driver.Summary("run.log"), state.Secret.Value())

	// The same byte-identical secret reached both artifacts.
	cacheConf, err := os.ReadFile(cfg.RedisConfPath)
	require.NoError(t, err)
	assert.Contains(t, string(cacheConf), "requirepass "+state.Secret.Value())

	unit, err := os.ReadFile(filepath.Join(cfg.SystemdDir, cfg.UnitName()))
	require.NoError(t, err)
	assert.Contains(t, string(unit), "redis://:"+state.Secret.Value()+"@127.0.0.1:6379/0")

	// Site enabled through the sites-enabled link.
	link, err := os.Readlink(filepath.Join(cfg.NginxEnabledDir, cfg.Domain))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.NginxSitesDir, cfg.Domain), link)

	// All three services verified active.
	require.Len(t, state.Results, 3)
	for _, r := range state.Results {
		assert.True(t, r.Active, r.Name)
	}

	commands := run.commands()
	assert.Contains(t, commands, "systemctl restart redis-server")
	assert.Contains(t, commands, "nginx -t")
	assert.Contains(t, commands, "systemctl restart nginx")
	assert.Contains(t, commands, "certbot --nginx -d voice.example.com --non-interactive --agree-tos -m ops@example.com")
	assert.Contains(t, commands, "systemctl daemon-reload")
	assert.Contains(t, commands, "systemctl enable sendora.service")
	assert.Contains(t, commands, "systemctl restart sendora.service")
}

func TestDriverRun_PriorInstallBackedUp(t *testing.T) {
	run := newFakeRunner()
	driver, cfg := newTestDriver(t, Options{}, run)

	require.NoError(t, os.MkdirAll(cfg.InstallDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InstallDir, "old.txt"), []byte("keep me"), 0o644))

	state, err := driver.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, state.Backup)
	assert.Equal(t, cfg.InstallDir, state.Backup.OriginalPath)
	content, err := os.ReadFile(filepath.Join(state.Backup.BackupPath, "old.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(content))
	assert.Contains(t, driver.Summary("run.log"), state.Backup.BackupPath)
}

func TestDriverRun_WithoutPrivilege(t *testing.T) {
	run := newFakeRunner()
	driver, cfg := newTestDriver(t, Options{}, run)
	driver.pre.geteuid = func() int { return 1000 }

	state, err := driver.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPreflight)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePreflight, stageErr.Stage)

	// Nothing was created and no command ran.
	assert.NoDirExists(t, cfg.LogDir)
	assert.Empty(t, run.commands())
	require.Len(t, state.Errors, 1)
	assert.Equal(t, StagePreflight, state.Errors[0].Stage)
}

func TestDriverRun_InstallFailureAbortsBeforeSecretGen(t *testing.T) {
	run := newFakeRunner()
	run.failOn["apt-get update"] = errors.New("exit status 100")
	driver, cfg := newTestDriver(t, Options{}, run)

	state, err := driver.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInstall)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageInstall, stageErr.Stage)

	// The secret generation side effect is observably absent.
	assert.True(t, state.Secret.IsZero())
	assert.NoFileExists(t, cfg.RedisConfPath)

	for _, cmd := range run.commands() {
		assert.NotContains(t, cmd, "systemctl restart")
		assert.NotContains(t, cmd, "certbot")
	}
}

func TestDriverRun_DryRunTouchesNoLiveService(t *testing.T) {
	run := newFakeRunner()
	driver, cfg := newTestDriver(t, Options{DryRun: true}, run)

	state, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageDone, state.Stage)

	// Only the read-only python probe hit the host.
	for _, cmd := range run.commands() {
		assert.True(t, strings.HasPrefix(cmd, "python3 --version"), cmd)
	}

	staging := filepath.Join(cfg.LogDir, "runs", "test-run", "rendered")
	assert.FileExists(t, filepath.Join(staging, cfg.Domain+".conf"))
	assert.FileExists(t, filepath.Join(staging, "redis.conf"))
	assert.FileExists(t, filepath.Join(staging, cfg.UnitName()))

	assert.NoFileExists(t, cfg.RedisConfPath)
	assert.NoFileExists(t, filepath.Join(cfg.SystemdDir, cfg.UnitName()))
}

func TestDriverRun_SkipTLS(t *testing.T) {
	run := newFakeRunner()
	run.failOn["certbot"] = errors.New("should not run")
	driver, _ := newTestDriver(t, Options{SkipTLS: true}, run)

	state, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageDone, state.Stage)

	for _, cmd := range run.commands() {
		assert.False(t, strings.HasPrefix(cmd, "certbot"), cmd)
	}
}

func TestDriverRun_InterruptFailsAtCurrentStage(t *testing.T) {
	run := newFakeRunner()
	driver, _ := newTestDriver(t, Options{}, run)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := driver.Run(ctx)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePreflight, stageErr.Stage)
	assert.NotEqual(t, StageDone, state.Stage)
}

func TestDriverRun_VerificationFailureNamesServices(t *testing.T) {
	run := newFakeRunner()
	run.outputs["systemctl is-active nginx.service"] = "failed"
	driver, _ := newTestDriver(t, Options{}, run)

	state, err := driver.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerify)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageVerify, stageErr.Stage)
	assert.Contains(t, err.Error(), "proxy")
	require.Len(t, state.Results, 3)
}

func TestDriver_StagesOrder(t *testing.T) {
	run := newFakeRunner()
	driver, _ := newTestDriver(t, Options{}, run)

	assert.Equal(t, []Stage{
		StagePreflight, StageBackup, StageInstall, StageSecretGen,
		StageRender, StageRestartCache, StageRestartProxy, StageTLS,
		StageRegisterSupervisor, StageVerify,
	}, driver.Stages())
}
