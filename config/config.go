package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Web      WebConfig      `yaml:"web"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Export   ExportConfig   `yaml:"export"`
	Firmware FirmwareConfig `yaml:"firmware"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	// PublicURL is the externally reachable base URL of this service,
	// embedded in OTA download links sent to devices.
	PublicURL string `yaml:"public_url"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// DiscoveryTopic is the wildcard filter devices announce themselves on.
	DiscoveryTopic string `yaml:"discovery_topic"`
	// OTATopicPrefix is the leading segment of per-device OTA topics.
	OTATopicPrefix string `yaml:"ota_topic_prefix"`
	QoS            byte   `yaml:"qos"`
}

type ExportConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	DrainInterval time.Duration `yaml:"drain_interval"`
	MaxRetries    int           `yaml:"max_retries"`
}

type FirmwareConfig struct {
	// RetentionDays is the grace window before soft-deleted production
	// firmware is purged by the reaper.
	RetentionDays int           `yaml:"retention_days"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "sensorhub.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "sensorhub",
				User:     "sensorhub",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8088,
			SessionSecret: "change-me-in-production",
			PublicURL:     "http://localhost:8088",
		},
		MQTT: MQTTConfig{
			Broker:         "localhost",
			Port:           1883,
			ClientID:       "sensorhub",
			DiscoveryTopic: "devices/+/info",
			OTATopicPrefix: "devices",
			QoS:            1,
		},
		Export: ExportConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			Topic:         "sensorhub.measurements",
			DrainInterval: 5 * time.Second,
			MaxRetries:    5,
		},
		Firmware: FirmwareConfig{
			RetentionDays: 14,
			SweepInterval: time.Hour,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }

// Snapshot returns a copy of the configuration with its own lock.
func (c *Config) Snapshot() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Config{
		Database: c.Database,
		Redis:    c.Redis,
		Web:      c.Web,
		MQTT:     c.MQTT,
		Export:   c.Export,
		Firmware: c.Firmware,
	}
}

// Replace overwrites the configuration with the values from other.
func (c *Config) Replace(other *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Database = other.Database
	c.Redis = other.Redis
	c.Web = other.Web
	c.MQTT = other.MQTT
	c.Export = other.Export
	c.Firmware = other.Firmware
}
