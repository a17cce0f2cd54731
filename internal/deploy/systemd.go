package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
)

// RenderUnit renders the supervised process's unit file to dest. The unit's
// environment block receives the same write-once secret that went into the
// cache config, embedded in the connection string. Restart policy and
// resource ceilings are static template text, not runtime-negotiated.
func RenderUnit(cfg Config, secret Secret, dest string) error {
	params := map[string]string{
		"AppName":       cfg.AppName,
		"Domain":        cfg.Domain,
		"AppPort":       strconv.Itoa(cfg.AppPort),
		"ReleaseDir":    cfg.ReleaseDir,
		"VenvDir":       cfg.VenvDir,
		"RedisURL":      fmt.Sprintf("redis://:%s@127.0.0.1:%d/0", secret.Value(), cfg.RedisPort),
		"RedisPassword": secret.Value(),
	}
	tpl := filepath.Join(cfg.ResolveTemplatesDir(), "systemd", "app.service")
	if err := WriteRendered(tpl, dest, params, 0o644); err != nil {
		return fmt.Errorf("unit file: %w", err)
	}
	return nil
}

// RegisterSupervisor reloads systemd state, enables the unit for start on
// boot and (re)starts it.
func RegisterSupervisor(ctx context.Context, run Runner, cfg Config) error {
	if err := run.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return err
	}
	if err := run.Run(ctx, "systemctl", "enable", cfg.UnitName()); err != nil {
		return err
	}
	return run.Run(ctx, "systemctl", "restart", cfg.UnitName())
}
