package utils

// validator.go - валидация данных
//
// Назначение:
// Проверка корректности входных данных: trade-params fields coming
// through the command surface, exchange credentials before they are
// persisted, and the configured trading pair/exchange at startup.

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrInvalidSpread     = errors.New("spread must be in (0, 100]")
	ErrInvalidVolume     = errors.New("volume must be in (0, 1e9)")
	ErrInvalidNOrders    = errors.New("order count must be in [1, 100]")
	ErrInvalidStopLoss   = errors.New("stop loss must be in (0, 100]")
	ErrInvalidLeverage   = errors.New("leverage must be in [1, 100]")
	ErrInvalidPercentage = errors.New("percentage must be in [0, 100]")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrInvalidAPIKey     = errors.New("API key must be 16-128 characters of letters, digits, hyphens or underscores")
	ErrInvalidAPISecret  = errors.New("API secret must be at least 16 characters")
	ErrTooLong           = errors.New("value exceeds maximum length")
	ErrInvalidExchange   = errors.New("unsupported exchange")
)

// SupportedExchanges mirrors internal/exchange.SupportedExchanges;
// duplicated here since pkg/ must not import internal/.
var SupportedExchanges = []string{"bybit", "bitget", "okx", "gate", "htx", "bingx"}

var (
	symbolRe = regexp.MustCompile(`^[A-Za-z0-9]{2,20}$`)
	emailRe  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	apiKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)
)

// ValidateSymbol checks sym is a plain alphanumeric pair symbol once
// its separators are stripped, e.g. "BTCUSDT" or "BTC-USDT".
func ValidateSymbol(sym string) error {
	if !symbolRe.MatchString(NormalizeSymbol(sym)) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, sym)
	}
	return nil
}

// IsValidSymbol is the boolean form of ValidateSymbol.
func IsValidSymbol(sym string) bool { return ValidateSymbol(sym) == nil }

// NormalizeSymbol strips the hyphen/underscore/slash separators some
// exchanges use and upcases the result.
func NormalizeSymbol(sym string) string {
	sym = strings.ToUpper(sym)
	sym = strings.NewReplacer("-", "", "_", "", "/", "").Replace(sym)
	return sym
}

// quoteCurrencies is checked longest-first so "USDT" wins over a
// coincidental trailing "T".
var quoteCurrencies = []string{"USDT", "USDC", "BUSD", "BTC", "ETH", "EUR", "USD"}

// ExtractBaseCurrency returns the base leg of a normalized symbol,
// e.g. "BTC" from "BTCUSDT".
func ExtractBaseCurrency(sym string) string {
	n := NormalizeSymbol(sym)
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(n, q) && len(n) > len(q) {
			return n[:len(n)-len(q)]
		}
	}
	return n
}

// ExtractQuoteCurrency returns the quote leg of a normalized symbol,
// e.g. "USDT" from "BTCUSDT".
func ExtractQuoteCurrency(sym string) string {
	n := NormalizeSymbol(sym)
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(n, q) && len(n) > len(q) {
			return q
		}
	}
	return ""
}

// ValidateSpread checks a percent-valued spread lies in (0, 100].
func ValidateSpread(spread float64) error {
	if spread <= 0 || spread > 100 {
		return fmt.Errorf("%w: %v", ErrInvalidSpread, spread)
	}
	return nil
}

// ValidateVolume checks a base-currency volume lies in (0, 1e9).
func ValidateVolume(volume float64) error {
	if volume <= 0 || volume >= 1e9 {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}
	return nil
}

// ValidateNOrders checks an order count lies in [1, 100].
func ValidateNOrders(n int) error {
	if n < 1 || n > 100 {
		return fmt.Errorf("%w: %v", ErrInvalidNOrders, n)
	}
	return nil
}

// ValidateStopLoss checks a percent-valued stop loss lies in (0, 100].
func ValidateStopLoss(sl float64) error {
	if sl <= 0 || sl > 100 {
		return fmt.Errorf("%w: %v", ErrInvalidStopLoss, sl)
	}
	return nil
}

// ValidateLeverage checks a leverage multiplier lies in [1, 100].
func ValidateLeverage(leverage int) error {
	if leverage < 1 || leverage > 100 {
		return fmt.Errorf("%w: %v", ErrInvalidLeverage, leverage)
	}
	return nil
}

// ValidatePercentage checks a percent value lies in [0, 100].
func ValidatePercentage(pct float64) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: %v", ErrInvalidPercentage, pct)
	}
	return nil
}

// ValidateEmail checks email has the shape user@domain.tld.
func ValidateEmail(email string) error {
	if email == "" || strings.Count(email, "@") != 1 || !emailRe.MatchString(email) {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return nil
}

// IsValidEmail is the boolean form of ValidateEmail.
func IsValidEmail(email string) bool { return ValidateEmail(email) == nil }

// ValidateAPIKey checks an exchange API key is 16-128 characters of
// letters, digits, hyphens or underscores.
func ValidateAPIKey(key string) error {
	if !apiKeyRe.MatchString(key) {
		return ErrInvalidAPIKey
	}
	return nil
}

// IsValidAPIKey is the boolean form of ValidateAPIKey.
func IsValidAPIKey(key string) bool { return ValidateAPIKey(key) == nil }

// ValidateAPISecret checks an exchange API secret is at least 16
// characters; unlike the key it has no fixed charset, since several
// exchanges issue secrets with arbitrary punctuation.
func ValidateAPISecret(secret string) error {
	if len(secret) < 16 {
		return ErrInvalidAPISecret
	}
	return nil
}

// ValidateAPIPassphrase checks an optional exchange passphrase (OKX,
// Bitget) does not exceed a sane length. An empty passphrase is valid
// since most exchanges don't require one.
func ValidateAPIPassphrase(passphrase string) error {
	if len(passphrase) > 64 {
		return ErrTooLong
	}
	return nil
}

// ValidateExchange checks name is one of SupportedExchanges,
// case-insensitively.
func ValidateExchange(name string) error {
	if !IsValidExchange(name) {
		return fmt.Errorf("%w: %q", ErrInvalidExchange, name)
	}
	return nil
}

// IsValidExchange is the boolean form of ValidateExchange.
func IsValidExchange(name string) bool {
	n := NormalizeExchange(name)
	for _, s := range SupportedExchanges {
		if n == s {
			return true
		}
	}
	return false
}

// NormalizeExchange trims and lowercases an exchange id.
func NormalizeExchange(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// GetSupportedExchanges returns a copy of SupportedExchanges, safe for
// a caller to mutate.
func GetSupportedExchanges() []string {
	out := make([]string, len(SupportedExchanges))
	copy(out, SupportedExchanges)
	return out
}

// ValidationErrors accumulates field-scoped validation failures, used
// by multi-field validators like ValidatePairConfig so a caller can
// report every problem in one response instead of stopping at the
// first.
type ValidationErrors []FieldError

// FieldError pairs a field name with its message.
type FieldError struct {
	Field   string
	Message string
}

// Add appends a field/message pair.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// AddError appends err's message under field, unless err is nil.
func (e *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	e.Add(field, err.Error())
}

// HasErrors reports whether any field error was recorded.
func (e ValidationErrors) HasErrors() bool { return len(e) > 0 }

// Error joins every field error into one message.
func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return strings.Join(parts, "; ")
}

// PairConfigValidation bundles the fields ValidatePairConfig checks.
type PairConfigValidation struct {
	Symbol      string
	EntrySpread float64
	ExitSpread  float64
	Volume      float64
	NOrders     int
	StopLoss    float64
	ExchangeA   string
	ExchangeB   string
}

// ValidatePairConfig validates every field of cfg, collecting all
// failures before returning. ExchangeA/ExchangeB are optional; when
// both are set they must name distinct supported exchanges, covering
// configurations that compare this agent's own market against a
// reference venue for the price watcher's informational feed.
func ValidatePairConfig(cfg PairConfigValidation) error {
	var errs ValidationErrors

	errs.AddError("symbol", ValidateSymbol(cfg.Symbol))
	errs.AddError("entry_spread", ValidateSpread(cfg.EntrySpread))
	errs.AddError("exit_spread", ValidateSpread(cfg.ExitSpread))
	errs.AddError("volume", ValidateVolume(cfg.Volume))
	errs.AddError("n_orders", ValidateNOrders(cfg.NOrders))
	errs.AddError("stop_loss", ValidateStopLoss(cfg.StopLoss))
	if cfg.EntrySpread > 0 && cfg.ExitSpread > 0 && cfg.EntrySpread < cfg.ExitSpread {
		errs.Add("entry_spread", "must be greater than or equal to exit_spread")
	}

	if cfg.ExchangeA != "" {
		errs.AddError("exchange_a", ValidateExchange(cfg.ExchangeA))
	}
	if cfg.ExchangeB != "" {
		errs.AddError("exchange_b", ValidateExchange(cfg.ExchangeB))
	}
	if cfg.ExchangeA != "" && cfg.ExchangeB != "" && NormalizeExchange(cfg.ExchangeA) == NormalizeExchange(cfg.ExchangeB) {
		errs.Add("exchange_b", "must differ from exchange_a")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
