// Package config loads service configuration from an optional YAML file and
// the environment. Environment variables override file values.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/zcy-charity/jar-service/internal/app/httpapi"
	"github.com/zcy-charity/jar-service/internal/blobstore"
	"github.com/zcy-charity/jar-service/internal/database"
	"github.com/zcy-charity/jar-service/pkg/logger"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database database.Config      `yaml:"database"`
	Logging  logger.LoggingConfig `yaml:"logging"`
	HTTP     httpapi.Config       `yaml:"http"`
	Provider ProviderConfig       `yaml:"provider"`
	Sync     SyncConfig           `yaml:"sync"`
	Blob     blobstore.S3Config   `yaml:"blob"`
	Auth     AuthConfig           `yaml:"auth"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"SERVER_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// ProviderConfig points at the payment provider's jar endpoint.
type ProviderConfig struct {
	URL   string `yaml:"url" env:"PROVIDER_URL"`
	Token string `yaml:"token" env:"PROVIDER_TOKEN"`
}

// SyncConfig controls the daily sync cycle.
type SyncConfig struct {
	// Schedule is a five-field cron expression.
	Schedule    string        `yaml:"schedule" env:"SYNC_SCHEDULE"`
	MinInterval time.Duration `yaml:"min_interval" env:"SYNC_MIN_INTERVAL"`
	CloseOnGoal bool          `yaml:"close_on_goal" env:"SYNC_CLOSE_ON_GOAL"`
}

// AuthConfig holds the login token settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: database.Config{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		HTTP: httpapi.Config{
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Sync: SyncConfig{
			Schedule:    "57 17 * * *",
			MinInterval: 61 * time.Second,
			CloseOnGoal: true,
		},
	}
}

// Load builds the configuration from defaults, the optional file named by
// CONFIG_FILE, and the environment, in that order.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}
