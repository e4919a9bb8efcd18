package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// MissingEnvError reports every required environment variable that is absent,
// not just the first one found.
type MissingEnvError struct {
	Vars []string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Vars, ", "))
}

type Config struct {
	App       AppConfig       `yaml:"app"`
	Practicum PracticumConfig `yaml:"practicum"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	Health    HealthConfig    `yaml:"health"`
}

type AppConfig struct {
	Name        string `yaml:"name" env:"APP_NAME" env-default:"homework-bot"`
	Environment string `yaml:"environment" env:"APP_ENVIRONMENT" env-default:"production"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

type PracticumConfig struct {
	Token          string        `yaml:"token" env:"PRACTICUM_TOKEN"`
	Endpoint       string        `yaml:"endpoint" env:"PRACTICUM_ENDPOINT" env-default:"https://practicum.yandex.ru/api/user_api/homework_statuses/"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"PRACTICUM_REQUEST_TIMEOUT" env-default:"30s"`
}

type TelegramConfig struct {
	Token  string `yaml:"token" env:"TELEGRAM_TOKEN"`
	ChatID int64  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
}

type WatcherConfig struct {
	Enabled      bool          `yaml:"enabled" env:"WATCHER_ENABLED" env-default:"true"`
	PollInterval time.Duration `yaml:"poll_interval" env:"WATCHER_POLL_INTERVAL" env-default:"10m"`
}

type DatabaseConfig struct {
	Host           string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User           string `yaml:"user" env:"DB_USER" env-default:"hwbot"`
	Password       string `yaml:"password" env:"DB_PASSWORD"`
	Name           string `yaml:"name" env:"DB_NAME" env-default:"hwbot"`
	MaxConnections int    `yaml:"max_connections" env:"DB_MAX_CONNECTIONS" env-default:"25"`
	MinConnections int    `yaml:"min_connections" env:"DB_MIN_CONNECTIONS" env-default:"5"`
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

type NATSConfig struct {
	URL        string `yaml:"url" env:"NATS_URL" env-default:"nats://localhost:4222"`
	StreamName string `yaml:"stream_name" env:"NATS_STREAM_NAME" env-default:"HOMEWORK"`
}

type HealthConfig struct {
	Port     int    `yaml:"port" env:"HEALTH_PORT" env-default:"8080"`
	Endpoint string `yaml:"endpoint" env:"HEALTH_ENDPOINT" env-default:"/healthz"`
}

func Load() (*Config, error) {
	// Optional .env for local runs.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg Config

	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from %s: %w", configPath, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	}

	var missing []string
	if cfg.Practicum.Token == "" {
		missing = append(missing, "PRACTICUM_TOKEN")
	}
	if cfg.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if cfg.Telegram.ChatID == 0 {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return nil, &MissingEnvError{Vars: missing}
	}

	return &cfg, nil
}

// DatabaseFromEnv builds a database config from environment variables alone.
// Used by the migrator, which must run even when the bot secrets are unset.
func DatabaseFromEnv() DatabaseConfig {
	_ = godotenv.Load()

	var db DatabaseConfig
	_ = cleanenv.ReadEnv(&db)
	return db
}

// PracticumFromEnv builds an API client config from environment variables
// alone, for tools that do not need the Telegram side.
func PracticumFromEnv() PracticumConfig {
	_ = godotenv.Load()

	var p PracticumConfig
	_ = cleanenv.ReadEnv(&p)
	return p
}
