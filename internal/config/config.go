package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	HTTPAddr string
	DBDSN    string

	// telegram
	TelegramToken         string
	TelegramAPIBase       string
	TelegramWebhookSecret string

	// "poll" uses getUpdates; "webhook" registers TelegramWebhookURL and serves updates over HTTP
	TelegramMode       string
	TelegramWebhookURL string

	// auth
	JWTSecret       string
	SessionDuration time.Duration

	// chat state cache; empty RedisAddr keeps state in process memory
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ChatStateTTL  time.Duration

	// rabbitMQ; empty RabbitURL dispatches inline
	RabbitURL   string
	RabbitQueue string

	WorkerConcurrency int

	// automation endpoint
	AutomationBaseURL     string
	AutomationTimeout     time.Duration
	AutomationPingTimeout time.Duration

	// conversations
	FlowsFile      string
	DefaultBoardID string
	SkipSentinel   string
	CancelKeyword  string
	VerboseHelp    bool

	// logging / telemetry
	LogFile      string
	LogLevel     string
	TelemetryDir string
}

func Load() Config {
	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/remote_control?charset=utf8mb4&parseTime=true&loc=Local
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "sqlite:./data/remote-control.db"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-me"
	}

	sessionDays := getEnvInt("SESSION_DURATION_DAYS", 30)
	if sessionDays <= 0 {
		sessionDays = 30
	}

	return Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":1337"),
		DBDSN:    dsn,

		TelegramToken:         os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAPIBase:       getEnv("TELEGRAM_API_BASE", "https://api.telegram.org"),
		TelegramWebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
		TelegramMode:          strings.ToLower(getEnv("TELEGRAM_MODE", "poll")),
		TelegramWebhookURL:    os.Getenv("TELEGRAM_WEBHOOK_URL"),

		JWTSecret:       secret,
		SessionDuration: time.Duration(sessionDays) * 24 * time.Hour,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		ChatStateTTL:  getEnvDuration("CHAT_STATE_TTL", 24*time.Hour),

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: getEnv("RABBIT_QUEUE", "chat_messages"),

		WorkerConcurrency: workerConcurrency(),

		AutomationBaseURL:     strings.TrimRight(os.Getenv("AUTOMATION_BASE_URL"), "/"),
		AutomationTimeout:     getEnvDuration("AUTOMATION_TIMEOUT", 30*time.Second),
		AutomationPingTimeout: getEnvDuration("AUTOMATION_PING_TIMEOUT", 5*time.Second),

		FlowsFile:      os.Getenv("FLOWS_FILE"),
		DefaultBoardID: getEnv("DEFAULT_BOARD_ID", "9744010967"),
		SkipSentinel:   getEnv("SKIP_SENTINEL", "skip"),
		CancelKeyword:  getEnv("CANCEL_KEYWORD", "cancel"),
		VerboseHelp:    getEnvBool("VERBOSE_HELP", true),

		LogFile:      os.Getenv("LOG_FILE"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		TelemetryDir: os.Getenv("TELEMETRY_DIR"),
	}
}

// Validate checks the settings every process role needs.
func (c Config) Validate() error {
	var errs []error
	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN cannot be empty"))
	}
	if c.SessionDuration <= 0 {
		errs = append(errs, errors.New("SESSION_DURATION_DAYS must be > 0"))
	}
	if c.AutomationTimeout <= 0 {
		errs = append(errs, errors.New("AUTOMATION_TIMEOUT must be > 0"))
	}
	if strings.TrimSpace(c.CancelKeyword) == "" {
		errs = append(errs, errors.New("CANCEL_KEYWORD cannot be empty"))
	}
	if c.IsProduction() && c.JWTSecret == "dev-secret-change-me" {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ValidateBot additionally checks what the message-handling roles (serve, worker) need.
func (c Config) ValidateBot() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.TelegramToken == "" {
		return errors.New("invalid configuration: TELEGRAM_BOT_TOKEN cannot be empty")
	}
	if c.AutomationBaseURL == "" {
		return errors.New("invalid configuration: AUTOMATION_BASE_URL cannot be empty")
	}
	switch c.TelegramMode {
	case "poll":
	case "webhook":
		if c.TelegramWebhookURL == "" {
			return errors.New("invalid configuration: TELEGRAM_WEBHOOK_URL is required in webhook mode")
		}
	default:
		return fmt.Errorf("invalid configuration: TELEGRAM_MODE must be poll or webhook, got %q", c.TelegramMode)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func workerConcurrency() int {
	n := getEnvInt("WORKER_CONCURRENCY", 2)
	if n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
