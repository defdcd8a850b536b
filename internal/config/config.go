// Package config содержит логику чтения конфигурации витрины.
package config

import (
	"flag"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации витрины.
type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	BackendURL    string `env:"BACKEND_URL"`
	DatabaseURI   string `env:"DATABASE_URI"`
	RedisAddress  string `env:"REDIS_ADDRESS"`
	SessionSecret string `env:"SESSION_SECRET"`

	Timezone        string        `env:"TIMEZONE" envDefault:"Asia/Bishkek"`
	Language        string        `env:"LANGUAGE" envDefault:"ru"`
	ErrorDismiss    time.Duration `env:"ERROR_DISMISS" envDefault:"5s"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	StateRetention  time.Duration `env:"STATE_RETENTION" envDefault:"720h"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"1m"`
	BackendRetryMax int           `env:"BACKEND_RETRY_MAX" envDefault:"3"`
	BackendTimeout  time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
	SecureCookie    bool          `env:"SECURE_COOKIE" envDefault:"false"`

	location *time.Location
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envBackendURL := cfg.BackendURL
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress
	envSessionSecret := cfg.SessionSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.BackendURL, "b", "https://ishop.kg/api/", "storefront API base URL")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI for session state")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for session state")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session cookie signing secret")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envBackendURL != "" {
		cfg.BackendURL = envBackendURL
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envSessionSecret != "" {
		cfg.SessionSecret = envSessionSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	return cfg, nil
}

// Location возвращает часовой пояс заведений.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
