// Package config loads the gate server configuration with Viper.
//
// Layering is built-in defaults < optional YAML file < GATEHOUSE_* environment
// variables (GATEHOUSE_TOKENS_EXIT_PASS_SECRET overrides tokens.exit_pass_secret).
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env       string          `mapstructure:"env"` // "dev" | "prod"
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tokens    TokensConfig    `mapstructure:"tokens"`
	Approvals ApprovalsConfig `mapstructure:"approvals"`
	Gate      GateConfig      `mapstructure:"gate"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Blacklist BlacklistConfig `mapstructure:"blacklist"`
	Events    EventsConfig    `mapstructure:"events"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// GRPCAddr is empty to disable the gRPC listener.
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "memory" | "sqlite"
	Path   string `mapstructure:"path"`
	// SeedDev loads the demo estate on startup.  Ignored outside dev.
	SeedDev bool `mapstructure:"seed_dev"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type TokensConfig struct {
	ExitPassSecret     string `mapstructure:"exit_pass_secret"`
	ExitPassTTLSeconds int    `mapstructure:"exit_pass_ttl_seconds"`
	VisitorPassSecret  string `mapstructure:"visitor_pass_secret"`
}

type ApprovalsConfig struct {
	TTLMinutes int `mapstructure:"ttl_minutes"`
	// SweepIntervalSeconds of 0 disables the background sweeper.
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

type GateConfig struct {
	// Timezone is an IANA zone name used for recurring visit windows.
	Timezone string `mapstructure:"timezone"`
}

type AuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens.  When empty (dev only) the
	// X-Tenant-ID and X-Actor-ID headers are trusted instead.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type BlacklistConfig struct {
	Backend string      `mapstructure:"backend"` // "memory" | "sqlite" | "redis"
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type EventsConfig struct {
	// AMQPURL is empty to keep events in the local access log only.
	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`
}

func (c *Config) IsDev() bool { return c.Env == "dev" }

func (c *Config) ExitPassTTL() time.Duration {
	return time.Duration(c.Tokens.ExitPassTTLSeconds) * time.Second
}

func (c *Config) ApprovalTTL() time.Duration {
	return time.Duration(c.Approvals.TTLMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Approvals.SweepIntervalSeconds) * time.Second
}

// Location resolves the estate time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Gate.Timezone)
}

// Load reads configPath (or config.yaml from the usual places when empty),
// applies environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/gatehouse")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("GATEHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))

	if cfg.IsDev() {
		if err := cfg.fillDevSecrets(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/gatehouse.db")
	v.SetDefault("database.seed_dev", true)

	v.SetDefault("logging.level", "info")

	v.SetDefault("tokens.exit_pass_ttl_seconds", 300)

	v.SetDefault("approvals.ttl_minutes", 10)
	v.SetDefault("approvals.sweep_interval_seconds", 60)

	v.SetDefault("gate.timezone", "UTC")

	v.SetDefault("blacklist.backend", "sqlite")
	v.SetDefault("blacklist.redis.addr", "localhost:6379")
	v.SetDefault("blacklist.redis.db", 0)
	v.SetDefault("blacklist.redis.prefix", "gatehouse:blacklist")

	v.SetDefault("events.amqp_exchange", "gatehouse.events")
}

// bindEnvVars binds every key explicitly; AutomaticEnv alone is not consulted
// by Unmarshal for keys that have no default.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"env",

		"server.http_addr",
		"server.grpc_addr",
		"server.shutdown_timeout",

		"database.driver",
		"database.path",
		"database.seed_dev",

		"logging.level",

		"tokens.exit_pass_secret",
		"tokens.exit_pass_ttl_seconds",
		"tokens.visitor_pass_secret",

		"approvals.ttl_minutes",
		"approvals.sweep_interval_seconds",

		"gate.timezone",

		"auth.jwt_secret",

		"blacklist.backend",
		"blacklist.redis.addr",
		"blacklist.redis.password",
		"blacklist.redis.db",
		"blacklist.redis.prefix",

		"events.amqp_url",
		"events.amqp_exchange",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// fillDevSecrets generates throwaway token secrets so a dev server starts
// without any configuration.  Passes do not survive a restart.
func (c *Config) fillDevSecrets() error {
	for _, s := range []*string{&c.Tokens.ExitPassSecret, &c.Tokens.VisitorPassSecret} {
		if *s != "" {
			continue
		}
		secret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generate dev secret: %w", err)
		}
		*s = secret
	}
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (c *Config) Validate() error {
	if c.Env != "dev" && c.Env != "prod" {
		return fmt.Errorf("invalid env: %q (must be dev or prod)", c.Env)
	}

	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required when using the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be memory or sqlite)", c.Database.Driver)
	}

	if c.Tokens.ExitPassSecret == "" {
		return fmt.Errorf("tokens.exit_pass_secret is required")
	}
	if c.Tokens.VisitorPassSecret == "" {
		return fmt.Errorf("tokens.visitor_pass_secret is required")
	}
	if c.Tokens.ExitPassSecret == c.Tokens.VisitorPassSecret {
		return fmt.Errorf("tokens.exit_pass_secret and tokens.visitor_pass_secret must differ")
	}
	if c.Tokens.ExitPassTTLSeconds <= 0 {
		return fmt.Errorf("tokens.exit_pass_ttl_seconds must be positive, got %d", c.Tokens.ExitPassTTLSeconds)
	}

	if c.Approvals.TTLMinutes <= 0 {
		return fmt.Errorf("approvals.ttl_minutes must be positive, got %d", c.Approvals.TTLMinutes)
	}
	if c.Approvals.SweepIntervalSeconds < 0 {
		return fmt.Errorf("approvals.sweep_interval_seconds must not be negative, got %d", c.Approvals.SweepIntervalSeconds)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid gate.timezone %q: %w", c.Gate.Timezone, err)
	}

	if !c.IsDev() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required outside dev")
	}

	switch c.Blacklist.Backend {
	case "memory":
	case "sqlite":
		if c.Database.Driver != "sqlite" {
			return fmt.Errorf("blacklist.backend sqlite requires database.driver sqlite")
		}
	case "redis":
		if c.Blacklist.Redis.Addr == "" {
			return fmt.Errorf("blacklist.redis.addr is required when using the redis backend")
		}
	default:
		return fmt.Errorf("invalid blacklist backend: %s (must be memory, sqlite, or redis)", c.Blacklist.Backend)
	}

	if c.Events.AMQPURL != "" && c.Events.AMQPExchange == "" {
		return fmt.Errorf("events.amqp_exchange is required when events.amqp_url is set")
	}

	return nil
}
