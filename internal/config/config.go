// Package config loads conductor's runtime configuration from a config file
// and CONDUCTOR_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	LogLevel  string          `mapstructure:"log_level"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	EnableCORS bool   `mapstructure:"enable_cors"`
	Debug      bool   `mapstructure:"debug"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig configures where records and checkpoints live.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// TasksFile returns the path of the task record file.
func (c StorageConfig) TasksFile() string {
	return filepath.Join(c.DataDir, "tasks.json")
}

// SchedulesFile returns the path of the schedule record file.
func (c StorageConfig) SchedulesFile() string {
	return filepath.Join(c.DataDir, "schedules.json")
}

// CheckpointsDir returns the checkpoint store directory.
func (c StorageConfig) CheckpointsDir() string {
	return filepath.Join(c.DataDir, "checkpoints")
}

// SchedulerConfig configures the trigger tick loop.
type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// Load reads configuration from path (optional) layered under environment
// overrides. Missing files are not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8391)
	v.SetDefault("server.enable_cors", true)
	v.SetDefault("server.debug", false)
	v.SetDefault("storage.data_dir", defaultDataDir())
	v.SetDefault("scheduler.tick_interval", time.Second)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("CONDUCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Scheduler.TickInterval <= 0 {
		cfg.Scheduler.TickInterval = time.Second
	}
	return &cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conductor"
	}
	return filepath.Join(home, ".conductor")
}
