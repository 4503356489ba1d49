package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Classifier ClassifierConfig
	Remote     RemoteConfig
	Mailbox    MailboxConfig
	SMTP       SMTPConfig
	Provision  ProvisionConfig
	Scheduler  SchedulerConfig
	Queue      QueueConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// ClassifierConfig points at the model inference endpoint.
type ClassifierConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// RemoteConfig holds credentials for the remote ticket service.
type RemoteConfig struct {
	BaseURL        string
	Username       string
	Password       string
	TimeoutSeconds int
}

// MailboxConfig holds IMAP connection values for the monitored inbox.
type MailboxConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string
	UseTLS   bool
}

// SMTPConfig holds outbound mail values for the support account.
type SMTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	UseTLS         bool
	TimeoutSeconds int
	AccountKey     string
}

// ProvisionConfig controls email-user provisioning.
type ProvisionConfig struct {
	TokenSecret          string
	PasswordSetTTLHours  int
	BcryptCost           int
	PasswordSetURLPrefix string
}

// SchedulerConfig holds the wall-clock periods for the sweeps.
type SchedulerConfig struct {
	StatusReconcileMinutes int
	CreationRetryMinutes   int
	ReplyDispatchMinutes   int
	MailboxPollSeconds     int
	PollBackoffCapSeconds  int
}

// QueueConfig controls task workers and the creation retry policy.
type QueueConfig struct {
	Workers             int
	MaxCreationAttempts int
	BackoffBaseSeconds  int
	BackoffCapSeconds   int
	StaleRetryMinutes   int
}

// Load reads configuration from environment variables, applying defaults
// where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-sync"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Classifier: ClassifierConfig{
			BaseURL:        getEnv("CLASSIFIER_BASE_URL", "http://127.0.0.1:9000"),
			TimeoutSeconds: getEnvAsInt("CLASSIFIER_TIMEOUT_SECONDS", 5),
		},
		Remote: RemoteConfig{
			BaseURL:        os.Getenv("REMOTE_BASE_URL"),
			Username:       os.Getenv("REMOTE_USERNAME"),
			Password:       os.Getenv("REMOTE_PASSWORD"),
			TimeoutSeconds: getEnvAsInt("REMOTE_TIMEOUT_SECONDS", 15),
		},
		Mailbox: MailboxConfig{
			Host:     os.Getenv("IMAP_HOST"),
			Port:     getEnvAsInt("IMAP_PORT", 993),
			Username: os.Getenv("IMAP_USERNAME"),
			Password: os.Getenv("IMAP_PASSWORD"),
			Folder:   getEnv("IMAP_FOLDER", "INBOX"),
			UseTLS:   getEnvAsBool("IMAP_USE_TLS", true),
		},
		SMTP: SMTPConfig{
			Host:           os.Getenv("SMTP_HOST"),
			Port:           getEnvAsInt("SMTP_PORT", 587),
			Username:       os.Getenv("SMTP_USERNAME"),
			Password:       os.Getenv("SMTP_PASSWORD"),
			From:           getEnv("SMTP_FROM", "support@example.com"),
			UseTLS:         getEnvAsBool("SMTP_USE_TLS", true),
			TimeoutSeconds: getEnvAsInt("SMTP_TIMEOUT_SECONDS", 10),
			AccountKey:     getEnv("SMTP_ACCOUNT_KEY", "support"),
		},
		Provision: ProvisionConfig{
			TokenSecret:          getEnv("PROVISION_TOKEN_SECRET", "dev-secret"),
			PasswordSetTTLHours:  getEnvAsInt("PROVISION_PASSWORD_SET_TTL_HOURS", 72),
			BcryptCost:           getEnvAsInt("PROVISION_BCRYPT_COST", 12),
			PasswordSetURLPrefix: getEnv("PROVISION_PASSWORD_SET_URL_PREFIX", "https://localhost/account/password/set"),
		},
		Scheduler: SchedulerConfig{
			StatusReconcileMinutes: getEnvAsInt("STATUS_RECONCILE_INTERVAL_MINUTES", 10),
			CreationRetryMinutes:   getEnvAsInt("CREATION_RETRY_INTERVAL_MINUTES", 10),
			ReplyDispatchMinutes:   getEnvAsInt("REPLY_DISPATCH_INTERVAL_MINUTES", 5),
			MailboxPollSeconds:     getEnvAsInt("MAILBOX_POLL_INTERVAL_SECONDS", 60),
			PollBackoffCapSeconds:  getEnvAsInt("MAILBOX_POLL_BACKOFF_CAP_SECONDS", 600),
		},
		Queue: QueueConfig{
			Workers:             getEnvAsInt("QUEUE_WORKERS", 4),
			MaxCreationAttempts: getEnvAsInt("QUEUE_MAX_CREATION_ATTEMPTS", 5),
			BackoffBaseSeconds:  getEnvAsInt("QUEUE_BACKOFF_BASE_SECONDS", 30),
			BackoffCapSeconds:   getEnvAsInt("QUEUE_BACKOFF_CAP_SECONDS", 600),
			StaleRetryMinutes:   getEnvAsInt("QUEUE_STALE_RETRY_MINUTES", 30),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the mailbox poll period.
func (s SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(s.MailboxPollSeconds) * time.Second
}

// PollBackoffCap returns the maximum mailbox reconnect backoff.
func (s SchedulerConfig) PollBackoffCap() time.Duration {
	return time.Duration(s.PollBackoffCapSeconds) * time.Second
}

// StaleRetryAge returns how long a ticket may sit in the retrying state
// before the sweep reclaims it.
func (q QueueConfig) StaleRetryAge() time.Duration {
	return time.Duration(q.StaleRetryMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
