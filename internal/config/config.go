// Package config loads the bot's configuration from environment
// variables, validating security-sensitive and numeric settings at
// startup rather than failing deep inside a running process.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/pkg/utils"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Trading  TradingConfig
	Logging  LoggingConfig
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig holds the API auth and credential-encryption secrets.
type SecurityConfig struct {
	EncryptionKey     string // AES-256 key for exchange API secrets, pkg/crypto
	DebugUsername     string
	DebugPasswordHash string // bcrypt hash, pkg/crypto
	SessionTimeout    int
}

// TradingConfig is the bot's own configuration surface (SPEC_FULL.md
// §11): which exchange and pair it trades, its credentials, the
// confirmation threshold, and where notifications fan out to.
type TradingConfig struct {
	Exchange   string // one of exchange.SupportedExchanges
	Pair       string // e.g. "BTC/USDT"
	APIKey     string
	APISecret  string // encrypted at rest by cmd/server; decrypted back via pkg/crypto before use
	Passphrase string // required by some venues (okx, bitget); empty otherwise

	AmountToConfirmUSD string // decimal string; parsed by tradeparams.Defaults overrides

	NotifyChannels []string // e.g. ["websocket"], future-proofed for additional sinks

	// WebSocket keepalive settings. internal/websocket/client.go does
	// not read them; its pongWait/pingPeriod constants are fixed.
	WSReconnectDelay time.Duration
	WSPingInterval   time.Duration
	WSReadTimeout    time.Duration

	BalanceRefreshFreq time.Duration // cache.BalanceCache TTL driver
	StatsUpdateFreq    time.Duration // notify.StatsUpdated broadcast cadence

	MaxRetries   int
	RetryBackoff time.Duration
	OrderTimeout time.Duration
}

// LoggingConfig configures the zap logger every component shares.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads Config from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradebot"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey:     getEnv("ENCRYPTION_KEY", ""),
			DebugUsername:     getEnv("DEBUG_USERNAME", ""),
			DebugPasswordHash: getEnv("DEBUG_PASSWORD_HASH", ""),
			SessionTimeout:    getEnvAsInt("SESSION_TIMEOUT", 3600),
		},
		Trading: TradingConfig{
			Exchange:   strings.ToLower(getEnv("EXCHANGE", "bybit")),
			Pair:       getEnv("TRADE_PAIR", "BTC/USDT"),
			APIKey:     getEnv("EXCHANGE_API_KEY", ""),
			APISecret:  getEnv("EXCHANGE_API_SECRET", ""),
			Passphrase: getEnv("EXCHANGE_API_PASSPHRASE", ""),

			AmountToConfirmUSD: getEnv("AMOUNT_TO_CONFIRM_USD", "1000"),
			NotifyChannels:     splitCSV(getEnv("NOTIFY_CHANNELS", "websocket")),

			WSReconnectDelay: getEnvAsDuration("WS_RECONNECT_DELAY", 1*time.Second),
			WSPingInterval:   getEnvAsDuration("WS_PING_INTERVAL", 15*time.Second),
			WSReadTimeout:    getEnvAsDuration("WS_READ_TIMEOUT", 30*time.Second),

			BalanceRefreshFreq: getEnvAsDuration("BALANCE_UPDATE_FREQ", 1*time.Minute),
			StatsUpdateFreq:    getEnvAsDuration("STATS_UPDATE_FREQ", 5*time.Second),

			MaxRetries:   getEnvAsInt("MAX_RETRIES", 4),
			RetryBackoff: getEnvAsDuration("RETRY_BACKOFF", 500*time.Millisecond),
			OrderTimeout: getEnvAsDuration("ORDER_TIMEOUT", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}
	if err := cfg.validateTrading(); err != nil {
		return nil, err
	}
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity checks the credential-encryption key.
func (c *Config) validateSecurity() error {
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting exchange API credentials")
	}
	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	return nil
}

// validateTrading checks the traded exchange and credentials.
func (c *Config) validateTrading() error {
	if !exchange.IsSupported(c.Trading.Exchange) {
		return fmt.Errorf("EXCHANGE %q is not supported, must be one of %v", c.Trading.Exchange, exchange.SupportedExchanges)
	}
	if c.Trading.Pair == "" {
		return fmt.Errorf("TRADE_PAIR is required")
	}
	if err := utils.ValidateSymbol(c.Trading.Pair); err != nil {
		return fmt.Errorf("TRADE_PAIR %q is malformed: %w", c.Trading.Pair, err)
	}
	if err := utils.ValidateAPIKey(c.Trading.APIKey); err != nil {
		return fmt.Errorf("EXCHANGE_API_KEY: %w", err)
	}
	if err := utils.ValidateAPISecret(c.Trading.APISecret); err != nil {
		return fmt.Errorf("EXCHANGE_API_SECRET: %w", err)
	}
	if err := utils.ValidateAPIPassphrase(c.Trading.Passphrase); err != nil {
		return fmt.Errorf("EXCHANGE_API_PASSPHRASE: %w", err)
	}
	return nil
}

// validateRanges checks numeric fields fall within sane bounds.
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}
	if c.Trading.MaxRetries < 0 || c.Trading.MaxRetries > 10 {
		return fmt.Errorf("MAX_RETRIES must be between 0 and 10, got %d", c.Trading.MaxRetries)
	}
	if c.Trading.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", c.Trading.OrderTimeout)
	}
	if c.Trading.WSReadTimeout <= 0 {
		return fmt.Errorf("WS_READ_TIMEOUT must be positive, got %v", c.Trading.WSReadTimeout)
	}
	if c.Security.SessionTimeout < 60 {
		return fmt.Errorf("SESSION_TIMEOUT must be at least 60 seconds, got %d", c.Security.SessionTimeout)
	}
	return nil
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword is the same DSN with the password redacted, for logging.
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
