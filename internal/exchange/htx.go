package exchange

import (
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/pkg/ratelimit"
)

// HTX is a structurally-complete, network-stubbed adapter: real HTX
// signing (AWS-style HMAC-SHA256 query-string signing) is an external
// collaborator this repository does not implement.
type HTX struct{ stubAdapter }

func NewHTX(creds Credentials, limiter *ratelimit.RateLimiter, logger *zap.SugaredLogger) *HTX {
	return &HTX{stubAdapter{
		name:    "htx",
		creds:   creds,
		limiter: limiter,
		logger:  logger,
		caps: Capabilities{
			PlaceMarketOrder:   true,
			AmountForMarketBuy: true,
			GetTradingFees:     false,
		},
	}}
}
