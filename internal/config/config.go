// Package config loads dispatchd settings from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Backend   BackendConfig   `yaml:"backend"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Auth      AuthConfig      `yaml:"auth"`
	Transform TransformConfig `yaml:"transform"`
	Session   SessionConfig   `yaml:"session"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
	Log       LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Addr         string   `yaml:"addr"`
	RateRPS      float64  `yaml:"rate_rps"`
	RateBurst    int      `yaml:"rate_burst"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	RateRPS float64       `yaml:"rate_rps"`
	Burst   int           `yaml:"burst"`
	// Breaker trips after this many consecutive failures.
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
	PageSize        int           `yaml:"page_size"`
	// DispatchMode is "batch" (POST /jobs/dispatch) or "each".
	DispatchMode      string `yaml:"dispatch_mode"`
	CommitConcurrency int    `yaml:"commit_concurrency"`
	// WorkingTimeMinutes is sent as workingTimeMinutesDefault on manual assign.
	WorkingTimeMinutes int `yaml:"working_time_minutes"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite, postgres
	DSN    string `yaml:"dsn"`
	Path   string `yaml:"path"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type AuthConfig struct {
	Mode       string `yaml:"mode"` // dev, hmac
	HMACSecret string `yaml:"hmac_secret"`
	Issuer     string `yaml:"issuer"`
	RoleClaim  string `yaml:"role_claim"`
}

type TransformConfig struct {
	Workers int `yaml:"workers"`
}

type SessionConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type WebhooksConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8080", RateRPS: 20, RateBurst: 40},
		Backend: BackendConfig{
			BaseURL:            "http://localhost:9000/api",
			Timeout:            15 * time.Second,
			RateRPS:            50,
			Burst:              100,
			BreakerFailures:    5,
			BreakerCooldown:    30 * time.Second,
			PageSize:           50,
			DispatchMode:       "batch",
			CommitConcurrency:  4,
			WorkingTimeMinutes: 480,
		},
		Database:  DatabaseConfig{Driver: "memory", Path: "dispatchdesk.db"},
		Kafka:     KafkaConfig{Topic: "dispatch.events"},
		Auth:      AuthConfig{Mode: "dev", RoleClaim: "role"},
		Transform: TransformConfig{Workers: 4},
		Session:   SessionConfig{IdleTTL: 30 * time.Minute, SweepInterval: time.Minute},
		Webhooks:  WebhooksConfig{MaxAttempts: 6, Interval: 500 * time.Millisecond},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over Defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Addr = ":" + v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
		if os.Getenv("DB_DRIVER") == "" {
			c.Database.Driver = "postgres"
		}
	}
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Backend.BaseURL, "BACKEND_URL")
	setString(&c.Backend.Token, "BACKEND_TOKEN")
	setString(&c.Auth.Mode, "AUTH_MODE")
	setString(&c.Auth.HMACSecret, "AUTH_HMAC_SECRET")
	setString(&c.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("ALLOW_ORIGINS"); v != "" {
		c.HTTP.AllowOrigins = splitList(v)
	}
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS: %w", err)
		}
		c.Webhooks.MaxAttempts = n
	}
	if v := os.Getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_RPS: %w", err)
		}
		c.HTTP.RateRPS = f
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.Backend.DispatchMode {
	case "batch", "each":
	default:
		return fmt.Errorf("backend.dispatch_mode must be batch or each, got %q", c.Backend.DispatchMode)
	}
	if c.Auth.Mode == "hmac" && c.Auth.HMACSecret == "" {
		return fmt.Errorf("auth.hmac_secret is required in hmac mode")
	}
	if c.Backend.PageSize <= 0 {
		c.Backend.PageSize = 50
	}
	if c.Transform.Workers <= 0 {
		c.Transform.Workers = 1
	}
	if c.Session.SweepInterval <= 0 {
		c.Session.SweepInterval = time.Minute
	}
	if c.Session.IdleTTL <= 0 {
		c.Session.IdleTTL = 30 * time.Minute
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
