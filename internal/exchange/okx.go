package exchange

import (
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/pkg/ratelimit"
)

// OKX is a structurally-complete, network-stubbed adapter: real OKX
// REST/WS signing (HMAC-SHA256 over timestamp+method+path+body,
// base64, with a passphrase header) is an external collaborator this
// repository does not implement.
type OKX struct{ stubAdapter }

func NewOKX(creds Credentials, limiter *ratelimit.RateLimiter, logger *zap.SugaredLogger) *OKX {
	return &OKX{stubAdapter{
		name:    "okx",
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
