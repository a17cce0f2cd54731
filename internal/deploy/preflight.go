package deploy

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Preflight validates environment preconditions before any mutation.
// Privilege and runtime-version failures are fatal; memory and disk floors
// only warn.
type Preflight struct {
	cfg Config
	run Runner
	log *zap.Logger

	geteuid func() int
}

func NewPreflight(cfg Config, run Runner, log *zap.Logger) *Preflight {
	return &Preflight{cfg: cfg, run: run, log: log, geteuid: os.Geteuid}
}

// Check runs all preflight validations. The privilege check comes first so
// a non-root invocation fails before any directory is created.
func (p *Preflight) Check(ctx context.Context) error {
	if euid := p.geteuid(); euid != 0 {
		return fmt.Errorf("%w: administrative privilege required (euid %d)", ErrPreflight, euid)
	}

	if err := ensureDir(p.cfg.LogDir, 0o750); err != nil {
		return fmt.Errorf("%w: create log directory: %v", ErrPreflight, err)
	}
	if err := os.Chown(p.cfg.LogDir, 0, 0); err != nil {
		p.log.Warn("could not fix log directory ownership", zap.Error(err))
	}

	if avail, ok := availableMemoryMB(); ok && avail < p.cfg.MinMemoryMB {
		p.log.Warn("available memory below floor",
			zap.Uint64("available_mb", avail),
			zap.Uint64("min_mb", p.cfg.MinMemoryMB))
	}
	if free, err := freeDiskGB("/"); err == nil && free < p.cfg.MinDiskGB {
		p.log.Warn("free disk below floor",
			zap.Uint64("free_gb", free),
			zap.Uint64("min_gb", p.cfg.MinDiskGB))
	}

	version, err := p.pythonVersion(ctx)
	if err != nil {
		return fmt.Errorf("%w: python3 not usable: %v", ErrPreflight, err)
	}
	if !versionAtLeast(version, p.cfg.MinPython) {
		return fmt.Errorf("%w: python %s < required %s", ErrPreflight, version, p.cfg.MinPython)
	}

	return nil
}

// Report prints a doctor-style read-only check table and never mutates the
// host.
func (p *Preflight) Report(ctx context.Context) error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"administrative privilege", func() error {
			if euid := p.geteuid(); euid != 0 {
				return fmt.Errorf("running as euid %d", euid)
			}
			return nil
		}},
		{fmt.Sprintf("memory >= %dMB", p.cfg.MinMemoryMB), func() error {
			avail, ok := availableMemoryMB()
			if !ok {
				return fmt.Errorf("memory stats unavailable")
			}
			if avail < p.cfg.MinMemoryMB {
				return fmt.Errorf("available %dMB", avail)
			}
			return nil
		}},
		{fmt.Sprintf("disk >= %dGB on /", p.cfg.MinDiskGB), func() error {
			free, err := freeDiskGB("/")
			if err != nil {
				return err
			}
			if free < p.cfg.MinDiskGB {
				return fmt.Errorf("free %dGB", free)
			}
			return nil
		}},
		{fmt.Sprintf("python >= %s", p.cfg.MinPython), func() error {
			version, err := p.pythonVersion(ctx)
			if err != nil {
				return err
			}
			if !versionAtLeast(version, p.cfg.MinPython) {
				return fmt.Errorf("found %s", version)
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			fmt.Printf("[WARN] %s: %v\n", check.name, err)
		} else {
			fmt.Printf("[ OK ] %s\n", check.name)
		}
	}
	return nil
}

func (p *Preflight) pythonVersion(ctx context.Context) (string, error) {
	out, err := p.run.Output(ctx, "python3", "--version")
	if err != nil {
		return "", err
	}
	// "Python 3.11.2"
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return "", fmt.Errorf("unexpected version output %q", out)
	}
	return fields[len(fields)-1], nil
}

func availableMemoryMB() (uint64, bool) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, false
	}
	return vm.Available / (1024 * 1024), true
}

func freeDiskGB(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return (stat.Bavail * uint64(stat.Bsize)) / (1024 * 1024 * 1024), nil
}

// versionAtLeast compares dotted numeric versions; missing segments count
// as zero.
func versionAtLeast(got, want string) bool {
	gotParts := strings.Split(got, ".")
	wantParts := strings.Split(want, ".")
	n := len(gotParts)
	if len(wantParts) > n {
		n = len(wantParts)
	}
	for i := 0; i < n; i++ {
		g, w := 0, 0
		if i < len(gotParts) {
			g, _ = strconv.Atoi(gotParts[i])
		}
		if i < len(wantParts) {
			w, _ = strconv.Atoi(wantParts[i])
		}
		if g != w {
			return g > w
		}
	}
	return true
}
