package exchange

import (
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/pkg/ratelimit"
)

// Gate is a structurally-complete, network-stubbed adapter: real
// Gate.io signing (HMAC-SHA512 over method+path+query+bodyHash+ts) is
// an external collaborator this repository does not implement.
type Gate struct{ stubAdapter }

func NewGate(creds Credentials, limiter *ratelimit.RateLimiter, logger *zap.SugaredLogger) *Gate {
	return &Gate{stubAdapter{
		name:    "gate",
		creds:   creds,
		limiter: limiter,
		logger:  logger,
		caps: Capabilities{
			PlaceMarketOrder:   true,
			AmountForMarketBuy: true,
			GetTradingFees:     true,
		},
	}}
}
