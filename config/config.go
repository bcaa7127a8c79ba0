// Package config loads service configuration via viper. The same viper tree
// also feeds the per-entity settings cascade (keys under "sendables.*").
package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Tracing  TracingConfig  `mapstructure:"tracing"`

	v *viper.Viper
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// gin mode: debug | release | test
	Mode string `mapstructure:"mode"`
	// requests per second per client, 0 disables limiting
	RateLimit float64 `mapstructure:"rate_limit"`
}

type DatabaseConfig struct {
	// driver: sqlite | postgres
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	DB      int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Load reads config.yaml from the working directory or ./config, with
// SENDABLES_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("SENDABLES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "sendables.db")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("jwt.secret", "dev-secret")
	v.SetDefault("jwt.ttl_minutes", 60)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine, defaults and env apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.v = v
	return &cfg, nil
}

// Viper exposes the underlying tree for the entity settings cascade.
func (c *Config) Viper() *viper.Viper { return c.v }
