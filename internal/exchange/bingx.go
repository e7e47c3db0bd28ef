package exchange

import (
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/pkg/ratelimit"
)

// BingX is a structurally-complete, network-stubbed adapter: real
// BingX signing (HMAC-SHA256 over sorted query params) is an external
// collaborator this repository does not implement.
type BingX struct{ stubAdapter }

func NewBingX(creds Credentials, limiter *ratelimit.RateLimiter, logger *zap.SugaredLogger) *BingX {
	return &BingX{stubAdapter{
		name:    "bingx",
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
