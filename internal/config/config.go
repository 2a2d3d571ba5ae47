package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-provided setting the service consumes.
// Load validates the settings the core boundary cannot run without and
// fails fast instead of letting a component degrade silently later.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Auth          AuthConfig
	Redis         RedisConfig
	Database      DatabaseConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	Mail          MailConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// AuthConfig points at the external auth provider used to resolve the
// identity behind an access token. URL and key are both mandatory.
type AuthConfig struct {
	ProviderURL string
	AnonKey     string
	Timeout     time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type DatabaseConfig struct {
	DSN string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
}

type MailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	FromName     string
	ContactInbox string
	APISecret    string
}

// Load reads .env (when present) and the process environment, then
// verifies the settings the gate and rate limiter depend on.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: GetEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  GetEnv("LOG_LEVEL", "info"),
			Format: GetEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			ProviderURL: os.Getenv("SUPABASE_URL"),
			AnonKey:     os.Getenv("SUPABASE_ANON_KEY"),
			Timeout:     getEnvDuration("AUTH_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Database: DatabaseConfig{
			DSN: os.Getenv("DATABASE_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   GetEnv("KAFKA_TOPIC", "marketplace-events"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      os.Getenv("CLICKHOUSE_URL"),
			Database: GetEnv("CLICKHOUSE_DATABASE", "neighborsos"),
			Username: GetEnv("CLICKHOUSE_USER", "default"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:      os.Getenv("ELASTICSEARCH_URL"),
			Username: os.Getenv("ELASTICSEARCH_USER"),
			Password: os.Getenv("ELASTICSEARCH_PASSWORD"),
		},
		Mail: MailConfig{
			SMTPHost:     os.Getenv("SMTP_HOST"),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
			SMTPUser:     os.Getenv("SMTP_USER"),
			SMTPPassword: os.Getenv("SMTP_PASSWORD"),
			FromAddress:  GetEnv("MAIL_FROM", "noreply@neighborsos.org"),
			FromName:     GetEnv("MAIL_FROM_NAME", "NeighborSOS"),
			ContactInbox: GetEnv("CONTACT_INBOX", "info@neighborsos.org"),
			APISecret:    os.Getenv("EMAIL_API_SECRET"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.Auth.ProviderURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if c.Auth.AnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	if c.Redis.URL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.Database.DSN == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) ServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// KafkaEnabled reports whether an event stream is configured; the
// service runs without one in development.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

func (c *Config) ClickhouseEnabled() bool {
	return c.Clickhouse.URL != ""
}

func (c *Config) ElasticsearchEnabled() bool {
	return c.Elasticsearch.URL != ""
}

func (c *Config) MailEnabled() bool {
	return c.Mail.SMTPHost != ""
}

// GetEnv returns the environment value for key or the fallback.
func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
