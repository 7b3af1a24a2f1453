package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Budget  BudgetConfig  `mapstructure:"budget"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Usage   UsageConfig   `mapstructure:"usage_tracking"`
	Blocker BlockerConfig `mapstructure:"blocker"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	AdminPort   int    `mapstructure:"admin_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt" or "redis"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines the redis backend settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BudgetConfig defines budget defaults applied on first run
type BudgetConfig struct {
	DefaultDailyLimitMinutes int `mapstructure:"default_daily_limit_minutes"`
}

// MonitorConfig defines enforcement monitor settings
type MonitorConfig struct {
	PollInterval    string   `mapstructure:"poll_interval"`
	BlockCooldown   string   `mapstructure:"block_cooldown"`
	SelfPackage     string   `mapstructure:"self_package"`
	LauncherPackage string   `mapstructure:"launcher_package"`
	IgnoredPackages []string `mapstructure:"ignored_packages"`
}

// UsageConfig defines usage tracking settings
type UsageConfig struct {
	SampleTimeout string `mapstructure:"sample_timeout"`
}

// BlockerConfig defines the external block commands
type BlockerConfig struct {
	BringToFrontCommand string `mapstructure:"bring_to_front_command"`
	TerminateCommand    string `mapstructure:"terminate_command"`
	NotifyCommand       string `mapstructure:"notify_command"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("KIDLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.admin_port", 8443)
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/kidlock/settings.db")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Budget defaults
	v.SetDefault("budget.default_daily_limit_minutes", 60)

	// Monitor defaults
	v.SetDefault("monitor.poll_interval", "5s")
	v.SetDefault("monitor.block_cooldown", "500ms")
	v.SetDefault("monitor.self_package", "com.yanmasharski.kidlock")
	v.SetDefault("monitor.launcher_package", "com.google.android.tvlauncher")
	v.SetDefault("monitor.ignored_packages", []string{})

	// Usage tracking defaults
	v.SetDefault("usage_tracking.sample_timeout", "2m")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.AdminPort <= 0 || cfg.Server.AdminPort > 65535 {
		return fmt.Errorf("invalid admin port: %d", cfg.Server.AdminPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "", "bolt":
		cfg.Storage.Type = "bolt"
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %q", cfg.Storage.Type)
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"monitor.poll_interval", cfg.Monitor.PollInterval},
		{"monitor.block_cooldown", cfg.Monitor.BlockCooldown},
		{"usage_tracking.sample_timeout", cfg.Usage.SampleTimeout},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid %s: %w", field.name, err)
		}
	}

	if cfg.Budget.DefaultDailyLimitMinutes < 0 {
		return fmt.Errorf("default daily limit must not be negative")
	}

	return nil
}

// Duration parses a duration config value, returning fallback when unset.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
