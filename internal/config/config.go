package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL     string        `yaml:"database_url"`
	AuthSecret      string        `yaml:"auth_secret"`
	Port            string        `yaml:"port"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Tracing  TracingConfig  `yaml:"tracing"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

type TracingConfig struct {
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	LeaderboardTTL time.Duration `yaml:"leaderboard_ttl"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Workers  int    `yaml:"workers"`
	Prefetch int    `yaml:"prefetch"`
}

func defaults() Config {
	return Config{
		Port:            "8080",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		Kafka: KafkaConfig{
			Topic: "redemption-events",
		},
		Redis: RedisConfig{
			LeaderboardTTL: 30 * time.Second,
		},
		RabbitMQ: RabbitMQConfig{
			Queue:    "referral_credits",
			Workers:  4,
			Prefetch: 16,
		},
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if
// set), then environment variables, each layer overriding the previous one.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "parse config file")
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if dbURL := env("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	} else if user := env("DB_USER"); user != "" {
		password := env("DB_PASSWORD")
		name := env("DB_NAME")
		if password == "" || name == "" {
			return errors.New("DB_USER requires DB_PASSWORD and DB_NAME")
		}
		cfg.DatabaseURL = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			envOr("DB_HOST", "localhost"),
			envOr("DB_PORT", "5432"),
			user,
			password,
			name,
			envOr("DB_SSLMODE", "disable"),
		)
	}

	setString(&cfg.AuthSecret, "AUTH_SECRET")
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Tracing.JaegerEndpoint, "JAEGER_ENDPOINT")
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&cfg.RabbitMQ.Queue, "RABBITMQ_QUEUE")

	if brokers := env("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}

	if err := setDuration(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Redis.LeaderboardTTL, "LEADERBOARD_TTL"); err != nil {
		return err
	}
	if err := setInt(&cfg.RabbitMQ.Workers, "CREDIT_WORKERS"); err != nil {
		return err
	}
	return setInt(&cfg.RabbitMQ.Prefetch, "RABBITMQ_PREFETCH")
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL or DB_USER/DB_PASSWORD/DB_NAME are required")
	}
	if c.AuthSecret == "" {
		return errors.New("AUTH_SECRET is required")
	}
	if c.RabbitMQ.Workers <= 0 {
		return errors.New("CREDIT_WORKERS must be positive")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envOr(key, fallback string) string {
	if v := env(key); v != "" {
		return v
	}
	return fallback
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := env(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", key)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := env(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", key)
	}
	*dst = n
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
