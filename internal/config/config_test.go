package config

import (
	"os"
	"testing"
)

func setTradingEnv(t *testing.T) {
	t.Helper()
	env := map[string]string{
		"ENCRYPTION_KEY":      "01234567890123456789012345678901",
		"EXCHANGE":            "bybit",
		"TRADE_PAIR":          "BTC/USDT",
		"EXCHANGE_API_KEY":    "key",
		"EXCHANGE_API_SECRET": "secret",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		orig, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, orig)
			}
		})
	}
}

func TestLoad_SucceedsWithRequiredFields(t *testing.T) {
	setTradingEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Trading.Exchange != "bybit" || cfg.Trading.Pair != "BTC/USDT" {
		t.Errorf("unexpected trading config: %+v", cfg.Trading)
	}
}

func TestLoad_RejectsUnsupportedExchange(t *testing.T) {
	setTradingEnv(t)
	t.Setenv("EXCHANGE", "not-a-real-exchange")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unsupported exchange")
	}
}

func TestLoad_RejectsMissingCredentials(t *testing.T) {
	setTradingEnv(t)
	clearEnv(t, "EXCHANGE_API_KEY")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for missing API credentials")
	}
}

func TestLoad_RejectsShortEncryptionKey(t *testing.T) {
	setTradingEnv(t)
	t.Setenv("ENCRYPTION_KEY", "too-short")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a non-32-byte encryption key")
	}
}

func TestDSN_IncludesPassword(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	if dsn := d.DSN(); !contains(dsn, "password=p") {
		t.Fatalf("expected the DSN to include the password, got %q", dsn)
	}
}

func TestDSNWithoutPassword_OmitsPassword(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "secret", Name: "n", SSLMode: "disable"}
	if got := d.DSNWithoutPassword(); contains(got, "secret") {
		t.Errorf("expected the password to be omitted, got %q", got)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
