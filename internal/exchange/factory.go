package exchange

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/pkg/ratelimit"
)

// SupportedExchanges lists the spot venues this agent can be pointed
// at via the startup exchange-id configuration.
var SupportedExchanges = []string{
	"bybit",
	"bitget",
	"okx",
	"gate",
	"htx",
	"bingx",
}

// Credentials holds the per-adapter connection secrets, decrypted by
// the caller just before constructing an adapter.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// New constructs an Adapter for the named exchange. The returned
// adapter owns its own rate limiter, sized conservatively (10 req/s,
// burst 20); the limiter cannot be replaced after construction.
func New(name string, creds Credentials, logger *zap.SugaredLogger) (Adapter, error) {
	name = strings.ToLower(name)

	limiter := ratelimit.NewRateLimiter(10, 20) // 10 req/s, burst 20

	switch name {
	case "bybit":
		return NewBybit(creds, limiter, logger), nil
	case "bitget":
		return NewBitget(creds, limiter, logger), nil
	case "okx":
		return NewOKX(creds, limiter, logger), nil
	case "gate":
		return NewGate(creds, limiter, logger), nil
	case "htx":
		return NewHTX(creds, limiter, logger), nil
	case "bingx":
		return NewBingX(creds, limiter, logger), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}

// IsSupported reports whether name is in SupportedExchanges.
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedExchanges {
		if name == supported {
			return true
		}
	}
	return false
}
