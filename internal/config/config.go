package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type StorageConfig struct {
	Type     string `mapstructure:"type"` // "sqlite" or "memory"
	FilePath string `mapstructure:"file_path"`
}

type RemoteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	AuthToken string `mapstructure:"auth_token"`
	Timeout   string `mapstructure:"timeout"`
	UserAgent string `mapstructure:"user_agent"`
}

func (r RemoteConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

type SyncConfig struct {
	MaxRetries       int    `mapstructure:"max_retries"`
	BaseDelay        string `mapstructure:"base_delay"`
	MaxDelay         string `mapstructure:"max_delay"`
	ConflictPageSize int    `mapstructure:"conflict_page_size"`
}

func (s SyncConfig) GetBaseDelay() time.Duration {
	d, err := time.ParseDuration(s.BaseDelay)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

func (s SyncConfig) GetMaxDelay() time.Duration {
	d, err := time.ParseDuration(s.MaxDelay)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

type SchedulerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Interval      string `mapstructure:"interval"`
	ProbeInterval string `mapstructure:"probe_interval"`
}

func (s SchedulerConfig) GetProbeInterval() time.Duration {
	d, err := time.ParseDuration(s.ProbeInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads the config file at path and applies FUELSYNC_* environment
// overrides on top of the built-in defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FUELSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults and env cover everything.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.file_path", "fuellog-queue.db")

	v.SetDefault("remote.base_url", "http://127.0.0.1:8080")
	v.SetDefault("remote.timeout", "15s")

	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.base_delay", "1s")
	v.SetDefault("sync.max_delay", "30s")
	v.SetDefault("sync.conflict_page_size", 10)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "@every 5m")
	v.SetDefault("scheduler.probe_interval", "30s")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
