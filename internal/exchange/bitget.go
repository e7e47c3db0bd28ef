package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/apierrors"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/pkg/ratelimit"
	"github.com/dome/adamant-tradebot/pkg/retry"
)

const bitgetBaseURL = "https://api.bitget.com"

var bitgetJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// bitgetSigner computes Bitget V2 REST signatures: base64(HMAC-SHA256
// (timestamp + method + requestPath + queryString + body, secret)).
type bitgetSigner struct {
	accessKey  string
	secretKey  string
	passphrase string
}

func (s *bitgetSigner) headers(method, path, query, body string) map[string]string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	payload := ts + method + path + query + body
	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(payload))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"ACCESS-KEY":        s.accessKey,
		"ACCESS-SIGN":       sig,
		"ACCESS-TIMESTAMP":  ts,
		"ACCESS-PASSPHRASE": s.passphrase,
		"Content-Type":      "application/json",
		"locale":            "en-US",
	}
}

// Bitget is the one fully-fleshed reference adapter: real request
// signing and decoding, wired through the shared HTTP client, rate
// limiter and retry policy. It still can't be exercised without
// network access, so its REST calls are the illustrative "how", not a
// certified-correct Bitget client.
type Bitget struct {
	signer  bitgetSigner
	http    *HTTPClient
	limiter *ratelimit.RateLimiter
	logger  *zap.SugaredLogger
	baseURL string
}

func NewBitget(creds Credentials, limiter *ratelimit.RateLimiter, logger *zap.SugaredLogger) *Bitget {
	return &Bitget{
		signer: bitgetSigner{
			accessKey:  creds.APIKey,
			secretKey:  creds.Secret,
			passphrase: creds.Passphrase,
		},
		http:    GetGlobalHTTPClient(),
		limiter: limiter,
		logger:  logger,
		baseURL: bitgetBaseURL,
	}
}

func (b *Bitget) Name() string { return "bitget" }

func (b *Bitget) Features() Capabilities {
	return Capabilities{
		PlaceMarketOrder:   true,
		AmountForMarketBuy: true,
		GetTradingFees:     true,
		OrderNumberLimit:   0,
	}
}

// bitgetRetryConfig retries only TransientAPIError (network failure,
// 5xx, rate-limit rejection); RejectedError and signature failures are
// never retried, per apierrors.TransientAPIError's Temporary() marker.
func (b *Bitget) bitgetRetryConfig() retry.Config {
	cfg := retry.NetworkConfig()
	cfg.RetryIf = retry.RetryIfTemporary
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		b.logger.Warnw("bitget request retrying", "attempt", attempt, "err", err, "delay", delay)
	}
	return cfg
}

// do performs a signed request and decodes the JSON body into out,
// retrying transient failures with pkg/retry's exponential backoff. A
// network failure, a 5xx status or a 429 is wrapped as a
// TransientAPIError; any other 4xx status is returned as a
// RejectedError carrying the raw response body as its Reason, and is
// not retried.
func (b *Bitget) do(ctx context.Context, method, path, query string, body []byte, out interface{}) error {
	data, err := retry.DoWithResult(ctx, func() ([]byte, error) {
		return b.doOnce(ctx, method, path, query, body)
	}, b.bitgetRetryConfig())
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := bitgetJSON.Unmarshal(data, out); err != nil {
		return &apierrors.TransientAPIError{Exchange: b.Name(), Op: path, Original: err}
	}
	return nil
}

// doOnce performs a single signed request attempt and returns the raw
// response body, classified into apierrors for retry.RetryIfTemporary
// to act on.
func (b *Bitget) doOnce(ctx context.Context, method, path, query string, body []byte) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, &apierrors.TransientAPIError{Exchange: b.Name(), Op: path, Original: err}
	}

	url := b.baseURL + path
	if query != "" {
		url += "?" + query
	}

	var reqBody io.Reader
	bodyStr := ""
	if body != nil {
		reqBody = bytes.NewReader(body)
		bodyStr = string(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, &apierrors.TransientAPIError{Exchange: b.Name(), Op: path, Original: err}
	}
	for k, v := range b.signer.headers(method, path, query, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, &apierrors.TransientAPIError{Exchange: b.Name(), Op: path, Original: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apierrors.TransientAPIError{Exchange: b.Name(), Op: path, Original: err}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &apierrors.TransientAPIError{Exchange: b.Name(), Op: path, Original: fmt.Errorf("status %d: %s", resp.StatusCode, data)}
	}
	if resp.StatusCode >= 400 {
		return nil, &apierrors.RejectedError{Exchange: b.Name(), Reason: string(data)}
	}

	return data, nil
}

type bitgetEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (b *Bitget) LoadMarkets(ctx context.Context) (map[string]models.MarketDescriptor, error) {
	var env bitgetEnvelope
	if err := b.do(ctx, http.MethodGet, "/api/v2/spot/public/symbols", "", nil, &env); err != nil {
		return nil, err
	}

	var rows []struct {
		Symbol        string `json:"symbol"`
		BaseCoin      string `json:"baseCoin"`
		QuoteCoin     string `json:"quoteCoin"`
		PricePrecision string `json:"pricePrecision"`
		QuantityPrecision string `json:"quantityPrecision"`
		MinTradeAmount string `json:"minTradeAmount"`
	}
	if err := bitgetJSON.Unmarshal(env.Data, &rows); err != nil {
		return nil, &apierrors.TransientAPIError{Exchange: b.Name(), Op: "LoadMarkets", Original: err}
	}

	out := make(map[string]models.MarketDescriptor, len(rows))
	for _, r := range rows {
		pricePrec, _ := strconv.Atoi(r.PricePrecision)
		qtyPrec, _ := strconv.Atoi(r.QuantityPrecision)
		minAmount, _ := decimal.NewFromString(r.MinTradeAmount)
		desc := models.MarketDescriptor{
			Base:          r.BaseCoin,
			Quote:         r.QuoteCoin,
			BaseDecimals:  int32(qtyPrec),
			QuoteDecimals: int32(pricePrec),
			MinAmount:     minAmount,
			PriceTick:     decimal.New(1, -int32(pricePrec)),
		}
		out[desc.Symbol()] = desc
	}
	return out, nil
}

func (b *Bitget) GetBalances(ctx context.Context, includeZero bool) ([]BalanceEntry, error) {
	var env bitgetEnvelope
	if err := b.do(ctx, http.MethodGet, "/api/v2/spot/account/assets", "", nil, &env); err != nil {
		return nil, err
	}

	var rows []struct {
		Coin      string `json:"coin"`
		Available string `json:"available"`
		Frozen    string `json:"frozen"`
	}
	if err := bitgetJSON.Unmarshal(env.Data, &rows); err != nil {
		return nil, &apierrors.TransientAPIError{Exchange: b.Name(), Op: "GetBalances", Original: err}
	}

	entries := make([]BalanceEntry, 0, len(rows))
	for _, r := range rows {
		free, _ := decimal.NewFromString(r.Available)
		locked, _ := decimal.NewFromString(r.Frozen)
		total := free.Add(locked)
		if !includeZero && total.IsZero() {
			continue
		}
		entries = append(entries, BalanceEntry{Coin: r.Coin, Free: free, Locked: locked, Total: total})
	}
	return entries, nil
}

func (b *Bitget) GetOpenOrders(ctx context.Context, pair string) ([]OpenOrder, error) {
	var env bitgetEnvelope
	query := "symbol=" + pairToBitgetSymbol(pair)
	if err := b.do(ctx, http.MethodGet, "/api/v2/spot/trade/unfilled-orders", query, nil, &env); err != nil {
		return nil, err
	}

	var rows []struct {
		OrderID     string `json:"orderId"`
		Side        string `json:"side"`
		Price       string `json:"price"`
		Size        string `json:"size"`
		BaseVolume  string `json:"baseVolume"`
		Status      string `json:"status"`
	}
	if err := bitgetJSON.Unmarshal(env.Data, &rows); err != nil {
		return nil, &apierrors.TransientAPIError{Exchange: b.Name(), Op: "GetOpenOrders", Original: err}
	}

	out := make([]OpenOrder, 0, len(rows))
	for _, r := range rows {
		price, _ := decimal.NewFromString(r.Price)
		amount, _ := decimal.NewFromString(r.Size)
		executed, _ := decimal.NewFromString(r.BaseVolume)
		side := models.SideBuy
		if r.Side == "sell" {
			side = models.SideSell
		}
		out = append(out, OpenOrder{
			ID: r.OrderID, Pair: pair, Side: side,
			Price: price, Amount: amount, AmountExecuted: executed, Status: r.Status,
		})
	}
	return out, nil
}

func (b *Bitget) GetOrderDetails(ctx context.Context, id, pair string) (OrderDetail, error) {
	var env bitgetEnvelope
	query := "orderId=" + id + "&symbol=" + pairToBitgetSymbol(pair)
	err := b.do(ctx, http.MethodGet, "/api/v2/spot/trade/orderInfo", query, nil, &env)
	if err != nil {
		if rej, ok := err.(*apierrors.RejectedError); ok && rej.Reason == "order not found" {
			return OrderDetail{Status: DetailUnknown}, nil
		}
		return OrderDetail{}, err
	}

	var rows []struct {
		Status      string `json:"status"`
		BaseVolume  string `json:"baseVolume"`
		QuoteVolume string `json:"quoteVolume"`
		PriceAvg    string `json:"priceAvg"`
	}
	if err := bitgetJSON.Unmarshal(env.Data, &rows); err != nil || len(rows) == 0 {
		return OrderDetail{Status: DetailUnknown}, nil
	}
	row := rows[0]

	filledBase, _ := decimal.NewFromString(row.BaseVolume)
	filledQuote, _ := decimal.NewFromString(row.QuoteVolume)
	avgPrice, _ := decimal.NewFromString(row.PriceAvg)

	status := DetailNew
	switch row.Status {
	case "filled":
		status = DetailFilled
	case "partially_filled":
		status = DetailPartFilled
	case "cancelled":
		status = DetailCancelled
	}

	return OrderDetail{Status: status, FilledBase: filledBase, FilledQuote: filledQuote, AvgFillPrice: avgPrice}, nil
}

func (b *Bitget) PlaceOrder(ctx context.Context, req PlaceRequest) (string, error) {
	orderType := "limit"
	if !req.IsLimit {
		orderType = "market"
	}
	payload := map[string]string{
		"symbol":    pairToBitgetSymbol(req.Pair),
		"side":      string(req.Side),
		"orderType": orderType,
		"force":     "gtc",
	}
	if req.IsLimit {
		payload["price"] = req.Price.String()
		payload["size"] = req.BaseAmount.String()
	} else if req.Side == models.SideBuy && !req.QuoteAmount.IsZero() {
		payload["size"] = req.QuoteAmount.String()
	} else {
		payload["size"] = req.BaseAmount.String()
	}

	body, err := bitgetJSON.Marshal(payload)
	if err != nil {
		return "", &apierrors.TransientAPIError{Exchange: b.Name(), Op: "PlaceOrder", Original: err}
	}

	var env bitgetEnvelope
	if err := b.do(ctx, http.MethodPost, "/api/v2/spot/trade/place-order", "", body, &env); err != nil {
		return "", err
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := bitgetJSON.Unmarshal(env.Data, &result); err != nil {
		return "", &apierrors.TransientAPIError{Exchange: b.Name(), Op: "PlaceOrder", Original: err}
	}
	return result.OrderID, nil
}

func (b *Bitget) CancelOrder(ctx context.Context, id string, side models.Side, pair string) (CancelOutcome, error) {
	payload := map[string]string{"orderId": id, "symbol": pairToBitgetSymbol(pair)}
	body, _ := bitgetJSON.Marshal(payload)

	err := b.do(ctx, http.MethodPost, "/api/v2/spot/trade/cancel-order", "", body, nil)
	if err == nil {
		return CancelledOK, nil
	}
	if rej, ok := err.(*apierrors.RejectedError); ok {
		if rej.Reason == "order not found" {
			return CancelUnknown, nil
		}
		return CancelAlready, nil
	}
	return CancelUnknown, err
}

func (b *Bitget) GetRates(ctx context.Context, pair string) (RateInfo, error) {
	var env bitgetEnvelope
	query := "symbol=" + pairToBitgetSymbol(pair)
	if err := b.do(ctx, http.MethodGet, "/api/v2/spot/market/tickers", query, nil, &env); err != nil {
		return RateInfo{}, err
	}

	var rows []struct {
		BidPr      string `json:"bidPr"`
		AskPr      string `json:"askPr"`
		LastPr     string `json:"lastPr"`
		High24h    string `json:"high24h"`
		Low24h     string `json:"low24h"`
		BaseVolume string `json:"baseVolume"`
		QuoteVolume string `json:"quoteVolume"`
	}
	if err := bitgetJSON.Unmarshal(env.Data, &rows); err != nil || len(rows) == 0 {
		return RateInfo{}, &apierrors.TransientAPIError{Exchange: b.Name(), Op: "GetRates", Original: fmt.Errorf("empty ticker response")}
	}
	row := rows[0]

	bid, _ := decimal.NewFromString(row.BidPr)
	ask, _ := decimal.NewFromString(row.AskPr)
	last, _ := decimal.NewFromString(row.LastPr)
	high, _ := decimal.NewFromString(row.High24h)
	low, _ := decimal.NewFromString(row.Low24h)
	volBase, _ := decimal.NewFromString(row.BaseVolume)
	volQuote, _ := decimal.NewFromString(row.QuoteVolume)

	return RateInfo{
		Bid: bid, Ask: ask, Last: last,
		High24h: high, Low24h: low,
		Volume24hBase: volBase, Volume24hQuote: volQuote,
	}, nil
}

func (b *Bitget) GetOrderBook(ctx context.Context, pair string, depth int) (OrderBookSnapshot, error) {
	var env bitgetEnvelope
	query := fmt.Sprintf("symbol=%s&limit=%d", pairToBitgetSymbol(pair), depth)
	if err := b.do(ctx, http.MethodGet, "/api/v2/spot/market/orderbook", query, nil, &env); err != nil {
		return OrderBookSnapshot{}, err
	}

	var raw struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := bitgetJSON.Unmarshal(env.Data, &raw); err != nil {
		return OrderBookSnapshot{}, &apierrors.TransientAPIError{Exchange: b.Name(), Op: "GetOrderBook", Original: err}
	}

	snap := OrderBookSnapshot{Pair: pair, Timestamp: time.Now()}
	for _, lvl := range raw.Bids {
		price, _ := decimal.NewFromString(lvl[0])
		amount, _ := decimal.NewFromString(lvl[1])
		snap.Bids = append(snap.Bids, PriceLevel{Price: price, Amount: amount})
	}
	for _, lvl := range raw.Asks {
		price, _ := decimal.NewFromString(lvl[0])
		amount, _ := decimal.NewFromString(lvl[1])
		snap.Asks = append(snap.Asks, PriceLevel{Price: price, Amount: amount})
	}
	return snap, nil
}

func (b *Bitget) Close() error {
	return nil
}

func pairToBitgetSymbol(pair string) string {
	out := make([]byte, 0, len(pair))
	for i := 0; i < len(pair); i++ {
		if pair[i] == '/' {
			continue
		}
		out = append(out, pair[i])
	}
	return string(out)
}
