package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPreflight(t *testing.T, run Runner) (*Preflight, Config) {
	t.Helper()
	cfg := testConfig(t)
	p := NewPreflight(cfg, run, zap.NewNop())
	p.geteuid = func() int { return 0 }
	return p, cfg
}

func TestPreflightCheck_RequiresPrivilege(t *testing.T) {
	p, cfg := newTestPreflight(t, newFakeRunner())
	p.geteuid = func() int { return 1000 }

	err := p.Check(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPreflight)
	assert.NoDirExists(t, cfg.LogDir)
}

func TestPreflightCheck_CreatesLogDir(t *testing.T) {
	p, cfg := newTestPreflight(t, newFakeRunner())

	require.NoError(t, p.Check(context.Background()))
	assert.DirExists(t, cfg.LogDir)
}

func TestPreflightCheck_PythonTooOld(t *testing.T) {
	run := newFakeRunner()
	run.outputs["python3 --version"] = "Python 3.8.10"
	p, _ := newTestPreflight(t, run)

	err := p.Check(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPreflight)
	assert.Contains(t, err.Error(), "3.8.10")
}

func TestPreflightCheck_PythonMissing(t *testing.T) {
	run := newFakeRunner()
	run.failOn["python3"] = context.DeadlineExceeded
	p, _ := newTestPreflight(t, run)

	err := p.Check(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPreflight)
}

func TestVersionAtLeast(t *testing.T) {
	cases := []struct {
		got, want string
		ok        bool
	}{
		{"3.10", "3.10", true},
		{"3.11.2", "3.10", true},
		{"3.10.0", "3.10", true},
		{"3.9.18", "3.10", false},
		{"3.8", "3.10", false},
		{"4.0", "3.10", true},
		{"3", "3.10", false},
		{"3.10", "3", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, versionAtLeast(tc.got, tc.want), "%s >= %s", tc.got, tc.want)
	}
}
