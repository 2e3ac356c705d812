package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend  string
	SQLiteDBPath string
	DatabaseURL  string
	// DatabaseMaxConns caps the Postgres pool.
	DatabaseMaxConns int

	// AMQP fan-out; empty URL selects the in-process queue
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Recurring processing
	RecurringInterval    time.Duration
	RecurringBatchSize   int
	RecurringWorkers     int
	RecurringMaxAttempts int
	RetryBaseDelay       time.Duration

	// Per-user throttle
	UserThrottleLimit  int
	UserThrottleWindow time.Duration

	// Budget alerts
	BudgetAlertInterval  time.Duration
	BudgetAlertThreshold int

	// Notifications
	Notifier              string
	GmailSender           string
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenJSON  string

	UserCacheTTL time.Duration
	LogLevel     string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrix.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		DatabaseMaxConns: getEnvInt("DATABASE_MAX_CONNS", 10),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrix"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "recurring_due"),

		RecurringInterval:    getEnvDuration("RECURRING_SCHEDULE_INTERVAL", 24*time.Hour),
		RecurringBatchSize:   getEnvInt("RECURRING_BATCH_SIZE", 500),
		RecurringWorkers:     getEnvInt("RECURRING_WORKERS", 4),
		RecurringMaxAttempts: getEnvInt("RECURRING_MAX_ATTEMPTS", 5),
		RetryBaseDelay:       getEnvDuration("RECURRING_RETRY_BASE_DELAY", time.Second),

		UserThrottleLimit:  getEnvInt("USER_THROTTLE_LIMIT", 10),
		UserThrottleWindow: getEnvDuration("USER_THROTTLE_WINDOW", time.Minute),

		BudgetAlertInterval:  getEnvDuration("BUDGET_ALERT_INTERVAL", 6*time.Hour),
		BudgetAlertThreshold: getEnvInt("BUDGET_ALERT_THRESHOLD", 80),

		Notifier:              getEnv("NOTIFIER", "log"),
		GmailSender:           getEnv("GMAIL_SENDER", ""),
		GoogleOAuthClientFile: getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:  getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthClientJSON: getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenJSON:  getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),

		UserCacheTTL: getEnvDuration("USER_CACHE_TTL", 10*time.Minute),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
		if c.DatabaseMaxConns < 1 || c.DatabaseMaxConns > 100 {
			errors = append(errors, fmt.Sprintf("invalid database max conns %d: must be between 1 and 100", c.DatabaseMaxConns))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [postgres sqlite]", c.DataBackend))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RecurringInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid recurring schedule interval %v: must be at least 1 second", c.RecurringInterval))
	}
	if c.RecurringBatchSize < 1 || c.RecurringBatchSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid recurring batch size %d: must be between 1 and 10000", c.RecurringBatchSize))
	}
	if c.RecurringWorkers < 1 || c.RecurringWorkers > 64 {
		errors = append(errors, fmt.Sprintf("invalid recurring workers %d: must be between 1 and 64", c.RecurringWorkers))
	}
	if c.RecurringMaxAttempts < 1 || c.RecurringMaxAttempts > 20 {
		errors = append(errors, fmt.Sprintf("invalid recurring max attempts %d: must be between 1 and 20", c.RecurringMaxAttempts))
	}
	if c.RetryBaseDelay <= 0 {
		errors = append(errors, fmt.Sprintf("invalid retry base delay %v: must be positive", c.RetryBaseDelay))
	}

	if c.UserThrottleLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid user throttle limit %d: must be at least 1", c.UserThrottleLimit))
	}
	if c.UserThrottleWindow < time.Second {
		errors = append(errors, fmt.Sprintf("invalid user throttle window %v: must be at least 1 second", c.UserThrottleWindow))
	}

	if c.BudgetAlertInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid budget alert interval %v: must be at least 1 minute", c.BudgetAlertInterval))
	}
	if c.BudgetAlertThreshold < 1 || c.BudgetAlertThreshold > 100 {
		errors = append(errors, fmt.Sprintf("invalid budget alert threshold %d: must be between 1 and 100", c.BudgetAlertThreshold))
	}

	switch c.Notifier {
	case "log":
	case "gmail":
		if c.GmailSender == "" {
			errors = append(errors, "GMAIL_SENDER is required when using gmail notifier")
		}
		// Must have either client file or JSON
		if c.GoogleOAuthClientFile == "" && c.GoogleOAuthClientJSON == "" {
			errors = append(errors, "either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided for gmail notifier")
		}
		// Must have either token file or JSON
		if c.GoogleOAuthTokenFile == "" && c.GoogleOAuthTokenJSON == "" {
			errors = append(errors, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided for gmail notifier")
		}
		if c.GoogleOAuthClientFile != "" {
			if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
			}
		}
		if c.GoogleOAuthTokenFile != "" {
			if _, err := os.Stat(c.GoogleOAuthTokenFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth token file does not exist: %s", c.GoogleOAuthTokenFile))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid notifier '%s': must be one of [gmail log]", c.Notifier))
	}

	if c.UserCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid user cache TTL %v: must be at least 1 second", c.UserCacheTTL))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
