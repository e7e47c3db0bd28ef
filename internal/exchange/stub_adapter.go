package exchange

import (
	"context"

	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/apierrors"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/pkg/ratelimit"
)

// stubAdapter is the shared shape behind every exchange that isn't
// the fleshed-out Bitget reference: real name/capabilities, but
// network calls return a TransientAPIError, matching the teacher's
// own per-exchange stub texture (bitget.go/okx.go/etc. in the
// original repository return "not implemented" for every network
// call while still exposing a real, wireable interface).
type stubAdapter struct {
	name    string
	caps    Capabilities
	creds   Credentials
	limiter *ratelimit.RateLimiter
	logger  *zap.SugaredLogger
}

func (s *stubAdapter) Name() string          { return s.name }
func (s *stubAdapter) Features() Capabilities { return s.caps }

func (s *stubAdapter) notImplemented(op string) error {
	return &apierrors.TransientAPIError{
		Exchange: s.name,
		Op:       op,
		Original: errNotImplemented,
	}
}

var errNotImplemented = &notImplementedErr{}

type notImplementedErr struct{}

func (*notImplementedErr) Error() string { return "adapter not wired to a live venue" }

func (s *stubAdapter) LoadMarkets(ctx context.Context) (map[string]models.MarketDescriptor, error) {
	return nil, s.notImplemented("LoadMarkets")
}

func (s *stubAdapter) GetBalances(ctx context.Context, includeZero bool) ([]BalanceEntry, error) {
	return nil, s.notImplemented("GetBalances")
}

func (s *stubAdapter) GetOpenOrders(ctx context.Context, pair string) ([]OpenOrder, error) {
	return nil, s.notImplemented("GetOpenOrders")
}

func (s *stubAdapter) GetOrderDetails(ctx context.Context, id, pair string) (OrderDetail, error) {
	return OrderDetail{}, s.notImplemented("GetOrderDetails")
}

func (s *stubAdapter) PlaceOrder(ctx context.Context, req PlaceRequest) (string, error) {
	return "", s.notImplemented("PlaceOrder")
}

func (s *stubAdapter) CancelOrder(ctx context.Context, id string, side models.Side, pair string) (CancelOutcome, error) {
	return CancelUnknown, s.notImplemented("CancelOrder")
}

func (s *stubAdapter) GetRates(ctx context.Context, pair string) (RateInfo, error) {
	return RateInfo{}, s.notImplemented("GetRates")
}

func (s *stubAdapter) GetOrderBook(ctx context.Context, pair string, depth int) (OrderBookSnapshot, error) {
	return OrderBookSnapshot{}, s.notImplemented("GetOrderBook")
}

func (s *stubAdapter) Close() error { return nil }
