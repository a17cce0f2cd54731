package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config carries every environment-specific value the orchestrator needs.
// It is loaded once, validated, and threaded explicitly through all
// components; nothing reads ambient process state.
type Config struct {
	Domain string `yaml:"domain" validate:"required,hostname"`
	Email  string `yaml:"email" validate:"required,email"`

	AppName   string `yaml:"app_name" validate:"required"`
	AppPort   int    `yaml:"app_port" validate:"min=1,max=65535"`
	RedisPort int    `yaml:"redis_port" validate:"min=1,max=65535"`

	InstallDir   string `yaml:"install_dir" validate:"required"`
	ReleaseDir   string `yaml:"release_dir" validate:"required"`
	VenvDir      string `yaml:"venv_dir" validate:"required"`
	LogDir       string `yaml:"log_dir" validate:"required"`
	TemplatesDir string `yaml:"templates_dir"`

	NginxSitesDir   string `yaml:"nginx_sites_dir"`
	NginxEnabledDir string `yaml:"nginx_enabled_dir"`
	RedisConfPath   string `yaml:"redis_conf_path"`
	SystemdDir      string `yaml:"systemd_dir"`

	MinMemoryMB uint64 `yaml:"min_memory_mb"`
	MinDiskGB   uint64 `yaml:"min_disk_gb"`
	MinPython   string `yaml:"min_python"`

	SystemPackages []string `yaml:"system_packages"`
}

// DefaultConfig returns the baseline a config file overrides.
func DefaultConfig() Config {
	return Config{
		AppName:         "sendora",
		AppPort:         8000,
		RedisPort:       6379,
		InstallDir:      "/opt/sendora",
		ReleaseDir:      "/opt/sendora/app",
		VenvDir:         "/opt/sendora/venv",
		LogDir:          "/var/log/sendora",
		NginxSitesDir:   "/etc/nginx/sites-available",
		NginxEnabledDir: "/etc/nginx/sites-enabled",
		RedisConfPath:   "/etc/redis/redis.conf",
		SystemdDir:      "/etc/systemd/system",
		MinMemoryMB:     1024,
		MinDiskGB:       5,
		MinPython:       "3.10",
		SystemPackages: []string{
			"python3", "python3-venv", "python3-pip",
			"nginx", "redis-server",
			"certbot", "python3-certbot-nginx",
		},
	}
}

// LoadConfig reads a YAML config file over the defaults and validates the
// result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// UnitName is the systemd unit the supervised process runs under.
func (c Config) UnitName() string { return c.AppName + ".service" }

// HealthURL is the public liveness endpoint served by the reverse proxy.
func (c Config) HealthURL() string { return "https://" + c.Domain + "/health" }

// ResolveTemplatesDir locates the template tree: an explicit config value
// wins, then a templates directory next to the binary, then the working
// directory, then the shared install location.
func (c Config) ResolveTemplatesDir() string {
	if custom := strings.TrimSpace(c.TemplatesDir); custom != "" {
		return custom
	}

	exe, err := os.Executable()
	if err == nil {
		binDir := filepath.Dir(exe)
		candidates := []string{
			filepath.Join(binDir, "..", "templates"),
			filepath.Join(binDir, "templates"),
		}
		for _, cand := range candidates {
			if dirExists(cand) {
				return cand
			}
		}
	}

	cwd, err := os.Getwd()
	if err == nil {
		cand := filepath.Join(cwd, "templates")
		if dirExists(cand) {
			return cand
		}
	}

	fallback := "/usr/local/share/sendora-deploy/templates"
	if dirExists(fallback) {
		return fallback
	}
	return "templates"
}
