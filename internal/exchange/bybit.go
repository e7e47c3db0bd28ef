package exchange

import (
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/pkg/ratelimit"
)

// Bybit is a structurally-complete, network-stubbed adapter: real Bybit
// v5 signing (HMAC-SHA256 over timestamp+apiKey+recvWindow+params) is
// an external collaborator this repository does not implement.
type Bybit struct{ stubAdapter }

func NewBybit(creds Credentials, limiter *ratelimit.RateLimiter, logger *zap.SugaredLogger) *Bybit {
	return &Bybit{stubAdapter{
		name:    "bybit",
		creds:   creds,
		limiter: limiter,
		logger:  logger,
		caps: Capabilities{
			PlaceMarketOrder:   true,
			AmountForMarketBuy: false,
			GetTradingFees:     true,
		},
	}}
}
