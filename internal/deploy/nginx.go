package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// RenderProxyConfig renders the reverse-proxy site config to dest. The
// template is pre-wired to the letsencrypt paths for the domain; the TLS
// stage only has to make those files exist.
func RenderProxyConfig(cfg Config, dest string) error {
	params := map[string]string{
		"Domain":  cfg.Domain,
		"AppName": cfg.AppName,
		"AppPort": strconv.Itoa(cfg.AppPort),
	}
	tpl := filepath.Join(cfg.ResolveTemplatesDir(), "nginx", "site.conf")
	if err := WriteRendered(tpl, dest, params, 0o644); err != nil {
		return fmt.Errorf("proxy config: %w", err)
	}
	return nil
}

// EnableProxySite links the rendered site into sites-enabled, replacing a
// stale link from a prior run.
func EnableProxySite(dest, link string) error {
	if err := ensureDir(filepath.Dir(link), 0o755); err != nil {
		return err
	}
	_ = os.Remove(link)
	if err := os.Symlink(dest, link); err != nil {
		return fmt.Errorf("enable site: %w", err)
	}
	return nil
}

// RestartProxy validates the nginx configuration before restarting so a
// broken config surfaces as a deploy failure, not a dead proxy.
func RestartProxy(ctx context.Context, run Runner) error {
	if err := run.Run(ctx, "nginx", "-t"); err != nil {
		return err
	}
	return run.Run(ctx, "systemctl", "restart", "nginx")
}
