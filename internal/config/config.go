// Package config loads the orchestrator's hierarchical configuration via
// viper: a config file plus environment overrides under the
// ORCHESTRATOR_ prefix, mirroring the teacher project's config layer.
// Configuration is read once at startup and treated as immutable for the
// life of the process; reload is a restart.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved configuration for one orchestrator
// process.
type Config struct {
	BasePath string `mapstructure:"base_path"`

	ListenAddr string `mapstructure:"listen_addr"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // "json" or "text"
	} `mapstructure:"log"`

	Monitoring struct {
		IntervalSeconds int `mapstructure:"interval_seconds"`
	} `mapstructure:"monitoring"`

	Install struct {
		Strictness string `mapstructure:"strictness"` // "strict" or "lenient"
	} `mapstructure:"install"`

	Tunnel struct {
		DefaultProvider string            `mapstructure:"default_provider"`
		ProviderTokens  map[string]string `mapstructure:"provider_tokens"`
	} `mapstructure:"tunnel"`

	Supervisor struct {
		MaxConcurrentApps int `mapstructure:"max_concurrent_apps"`
		GraceSeconds      int `mapstructure:"grace_seconds"`
		MaxRestarts       int `mapstructure:"max_restarts"`
	} `mapstructure:"supervisor"`

	URL struct {
		HealthIntervalSeconds int `mapstructure:"health_interval_seconds"`
	} `mapstructure:"url"`

	Resources struct {
		Thresholds struct {
			CPU    Threshold `mapstructure:"cpu"`
			Memory Threshold `mapstructure:"memory"`
			Disk   Threshold `mapstructure:"disk"`
			GPU    Threshold `mapstructure:"gpu"`
		} `mapstructure:"thresholds"`
	} `mapstructure:"resources"`

	API struct {
		AuthSecret     string   `mapstructure:"auth_secret"` // empty disables JWT auth
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"api"`

	State struct {
		SnapshotEvery int `mapstructure:"snapshot_every"` // records between opportunistic snapshots
	} `mapstructure:"state"`

	Event struct {
		RingCapacity int `mapstructure:"ring_capacity"`
	} `mapstructure:"event"`

	CatalogPath string `mapstructure:"catalog_path"`
}

// Threshold is a warning/critical pair used for resource alerting.
type Threshold struct {
	Warning  float64 `mapstructure:"warning"`
	Critical float64 `mapstructure:"critical"`
}

// MonitoringInterval returns the configured sampling interval as a
// time.Duration.
func (c *Config) MonitoringInterval() time.Duration {
	return time.Duration(c.Monitoring.IntervalSeconds) * time.Second
}

// Load reads config.yaml from the usual search paths, applies
// ORCHESTRATOR_-prefixed environment overrides, and returns the
// resolved Config.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/skiffd")
	}

	setDefaults(v)

	v.SetEnvPrefix("ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.BasePath == "" {
		return nil, fmt.Errorf("base_path must be set")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "127.0.0.1:8733")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.interval_seconds", 5)
	v.SetDefault("install.strictness", "lenient")
	v.SetDefault("tunnel.default_provider", "quicktunnel")
	v.SetDefault("supervisor.max_concurrent_apps", 8)
	v.SetDefault("supervisor.grace_seconds", 10)
	v.SetDefault("supervisor.max_restarts", 2)
	v.SetDefault("url.health_interval_seconds", 10)
	v.SetDefault("resources.thresholds.cpu.warning", 70.0)
	v.SetDefault("resources.thresholds.cpu.critical", 90.0)
	v.SetDefault("resources.thresholds.memory.warning", 75.0)
	v.SetDefault("resources.thresholds.memory.critical", 95.0)
	v.SetDefault("resources.thresholds.disk.warning", 80.0)
	v.SetDefault("resources.thresholds.disk.critical", 95.0)
	v.SetDefault("resources.thresholds.gpu.warning", 80.0)
	v.SetDefault("resources.thresholds.gpu.critical", 97.0)
	v.SetDefault("state.snapshot_every", 500)
	v.SetDefault("event.ring_capacity", 10000)
	v.SetDefault("catalog_path", "catalog.json")
}
