package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Ordering OrderingConfig `yaml:"ordering"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	LogLevel string         `yaml:"log_level"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	MetricsPort int      `yaml:"metrics_port"`
	CORSOrigins []string `yaml:"cors_origins"`
	BodyLimit   int64    `yaml:"body_limit"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Source string `yaml:"source"`
}

type OrderingConfig struct {
	Expiry        time.Duration `yaml:"expiry"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RedisConfig enables the sweeper lease when URL is set
type RedisConfig struct {
	URL string `yaml:"url"`
}

// KafkaConfig enables order event publishing when Brokers is non-empty
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns the configuration used when nothing else is supplied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			MetricsPort: 9090,
			CORSOrigins: []string{"http://localhost:3000"},
			BodyLimit:   2 << 20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			Source: "canteen.db",
		},
		Ordering: OrderingConfig{
			Expiry:        15 * time.Minute,
			SweepInterval: time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "canteen.orders",
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists), a .env file in the working directory and finally the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = n
	}
	if v, ok := lookup("METRICS_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS_PORT %q: %w", v, err)
		}
		c.Server.MetricsPort = n
	}
	if v, ok := lookup("CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("DB_DRIVER"); ok {
		c.Database.Driver = v
	}
	if v, ok := lookup("DB_SOURCE"); ok {
		c.Database.Source = v
	}
	if v, ok := lookup("ORDER_EXPIRY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ORDER_EXPIRY %q: %w", v, err)
		}
		c.Ordering.Expiry = d
	}
	if v, ok := lookup("SWEEP_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SWEEP_INTERVAL %q: %w", v, err)
		}
		c.Ordering.SweepInterval = d
	}
	if v, ok := lookup("REDIS_URL"); ok {
		c.Redis.URL = v
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup("KAFKA_TOPIC"); ok {
		c.Kafka.Topic = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	return nil
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("metrics port %d out of range", c.Server.MetricsPort)
	}
	if c.Server.BodyLimit <= 0 {
		return errors.New("body limit must be positive")
	}
	switch c.Database.Driver {
	case "sqlite3", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Source == "" {
		return errors.New("database source is required")
	}
	if c.Ordering.Expiry <= 0 {
		return errors.New("order expiry must be positive")
	}
	if c.Ordering.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
