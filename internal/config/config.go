package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Remote    RemoteConfig    `yaml:"remote"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TransportConfig selects how the control surface is served.
type TransportConfig struct {
	Mode string `yaml:"mode"` // "stdio" or "http"
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// RemoteConfig describes the spreadsheet-backed remote store and the
// token-issuing proxy in front of it.
type RemoteConfig struct {
	Enabled          bool          `yaml:"enabled"`
	SecretsBaseURL   string        `yaml:"secrets_base_url"`
	RecordsBaseURL   string        `yaml:"records_base_url"`
	APIKey           string        `yaml:"api_key,omitempty"`
	TableID          string        `yaml:"table_id,omitempty"`
	TableName        string        `yaml:"table_name"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	Timeout          time.Duration `yaml:"timeout"`
	AutoSyncInterval time.Duration `yaml:"auto_sync_interval"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		DB: DBConfig{
			Path: "dayloop.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Remote: RemoteConfig{
			TableName:        "Daily Routine App Data",
			RetryAttempts:    3,
			RetryDelay:       time.Second,
			Timeout:          10 * time.Second,
			AutoSyncInterval: 30 * time.Second,
		},
	}

	if path := os.Getenv("DAYLOOP_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("DAYLOOP_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("DAYLOOP_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DAYLOOP_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if mode := os.Getenv("DAYLOOP_TRANSPORT_MODE"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if dbPath := os.Getenv("DAYLOOP_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("DAYLOOP_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if v := os.Getenv("DAYLOOP_REMOTE_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DAYLOOP_REMOTE_ENABLED: %w", err)
		}
		cfg.Remote.Enabled = enabled
	}
	if url := os.Getenv("DAYLOOP_SECRETS_BASE_URL"); url != "" {
		cfg.Remote.SecretsBaseURL = url
	}
	if url := os.Getenv("DAYLOOP_RECORDS_BASE_URL"); url != "" {
		cfg.Remote.RecordsBaseURL = url
	}
	if key := os.Getenv("DAYLOOP_API_KEY"); key != "" {
		cfg.Remote.APIKey = key
	}
	if id := os.Getenv("DAYLOOP_TABLE_ID"); id != "" {
		cfg.Remote.TableID = id
	}
	if name := os.Getenv("DAYLOOP_TABLE_NAME"); name != "" {
		cfg.Remote.TableName = name
	}

	if cfg.Transport.Mode != "stdio" && cfg.Transport.Mode != "http" {
		return Config{}, fmt.Errorf("invalid transport mode %q", cfg.Transport.Mode)
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
