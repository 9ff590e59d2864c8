package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config describes everything agentbindd loads at startup.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Events   EventsConfig   `json:"events"`
	Registry RegistryConfig `json:"registry"`
	Policy   PolicyConfig   `json:"policy"`
	Auth     AuthConfig     `json:"auth"`
	Indexer  IndexerConfig  `json:"indexer"`
	Alerts   AlertsConfig   `json:"alerts"`
	Log      LogConfig      `json:"log"`
}

// AlertsConfig wires optional alert delivery channels; alerts always reach
// the structured log.
type AlertsConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// ServerConfig controls the REST listener.
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig selects where associations are persisted.
type StorageConfig struct {
	Driver string      `json:"driver"`
	MySQL  MySQLConfig `json:"mysql"`
}

// MySQLConfig carries the MySQL connection pool settings.
type MySQLConfig struct {
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// EventsConfig selects the notification transport.
type EventsConfig struct {
	Driver     string         `json:"driver"`
	BufferSize int            `json:"buffer_size"`
	Redis      RedisConfig    `json:"redis"`
	RabbitMQ   RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig carries the Redis event list settings.
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	List             string `json:"list"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig carries the RabbitMQ event queue settings.
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// RegistryConfig selects the token registry backing the gate.
type RegistryConfig struct {
	Driver       string `json:"driver"`
	ChainConfig  string `json:"chain_config"`
	DefaultChain string `json:"default_chain"`
}

// PolicyConfig carries the deployment prompt length policy. Zero values
// leave prompt length unbounded.
type PolicyConfig struct {
	PromptMinLength int `json:"prompt_min_length"`
	PromptMaxLength int `json:"prompt_max_length"`
}

// AuthConfig bounds how old a signed mutation envelope may be.
type AuthConfig struct {
	MaxAgeSeconds int `json:"max_age_seconds"`
}

// IndexerConfig controls the in-process notification consumer.
type IndexerConfig struct {
	Enabled bool `json:"enabled"`
	Workers int  `json:"workers"`
}

// LogConfig mirrors pkg/logger.Config.
type LogConfig struct {
	Level   string         `json:"level"`
	Format  string         `json:"format"`
	Outputs []string       `json:"outputs"`
	Audit   AuditLogConfig `json:"audit"`
}

// AuditLogConfig configures the rotating audit trail.
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Load parses the JSON configuration file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults fills in sensible values for fields the user left empty.
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "memory"
	}
	if c.Events.BufferSize <= 0 {
		c.Events.BufferSize = 64
	}

	if c.Registry.Driver == "" {
		c.Registry.Driver = "memory"
	}
	if c.Registry.ChainConfig != "" && !filepath.IsAbs(c.Registry.ChainConfig) {
		c.Registry.ChainConfig = filepath.Join(baseDir, c.Registry.ChainConfig)
	}

	if c.Auth.MaxAgeSeconds <= 0 {
		c.Auth.MaxAgeSeconds = 300
	}

	if c.Indexer.Workers <= 0 {
		c.Indexer.Workers = 1
	}
}
