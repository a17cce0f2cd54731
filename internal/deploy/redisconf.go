package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
)

// RenderCacheConfig renders redis.conf to dest with the run's secret as
// requirepass. This is one of the two artifacts the secret must reach; the
// other is the supervised unit's environment block.
func RenderCacheConfig(cfg Config, secret Secret, dest string) error {
	params := map[string]string{
		"Port":     strconv.Itoa(cfg.RedisPort),
		"Password": secret.Value(),
	}
	tpl := filepath.Join(cfg.ResolveTemplatesDir(), "redis", "redis.conf")
	if err := WriteRendered(tpl, dest, params, 0o640); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	return nil
}

func RestartCache(ctx context.Context, run Runner) error {
	return run.Run(ctx, "systemctl", "restart", "redis-server")
}
