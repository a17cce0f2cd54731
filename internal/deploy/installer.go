package deploy

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// Installer brings system packages and the application's isolated
// dependency environment up to date. Every step is safe to re-run: apt and
// pip both treat already-satisfied packages as no-ops. Any non-zero exit is
// fatal; applied steps stay applied.
type Installer struct {
	cfg Config
	run Runner
	log *zap.Logger
}

func NewInstaller(cfg Config, run Runner, log *zap.Logger) *Installer {
	return &Installer{cfg: cfg, run: run, log: log}
}

func (i *Installer) Install(ctx context.Context) error {
	if err := i.run.Run(ctx, "apt-get", "update"); err != nil {
		return fmt.Errorf("%w: %v", ErrInstall, err)
	}

	args := append([]string{"install", "-y"}, i.cfg.SystemPackages...)
	if err := i.run.Run(ctx, "apt-get", args...); err != nil {
		return fmt.Errorf("%w: %v", ErrInstall, err)
	}

	if !dirExists(i.cfg.VenvDir) {
		i.log.Info("creating application venv", zap.String("dir", i.cfg.VenvDir))
		if err := i.run.Run(ctx, "python3", "-m", "venv", i.cfg.VenvDir); err != nil {
			return fmt.Errorf("%w: %v", ErrInstall, err)
		}
	}

	pip := filepath.Join(i.cfg.VenvDir, "bin", "pip")
	if err := i.run.Run(ctx, pip, "install", "--upgrade", "pip"); err != nil {
		return fmt.Errorf("%w: %v", ErrInstall, err)
	}
	requirements := filepath.Join(i.cfg.ReleaseDir, "requirements.txt")
	if err := i.run.Run(ctx, pip, "install", "-r", requirements); err != nil {
		return fmt.Errorf("%w: %v", ErrInstall, err)
	}
	return nil
}
