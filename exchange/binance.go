package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/evdnx/gohttpcl"
	"github.com/evdnx/golog"
	metrics "github.com/evdnx/gotrademetrics"
	"github.com/evdnx/tradingcp/internal/logutil"
	"github.com/evdnx/tradingcp/models"
)

const (
	binanceComponent     = "binance_venue"
	binanceHTTPTimeout   = 10 * time.Second
	binanceMaxKlines     = 1000
	binanceDefaultKlines = 500
)

// BinanceVenue implements Venue against the Binance spot REST API
type BinanceVenue struct {
	capabilitySet
	id          string
	apiKey      string
	apiSecret   string
	interval    time.Duration
	baseURL     string
	httpTimeout time.Duration
	maxRetries  int
	httpClient  *gohttpcl.Client
	metrics     *metrics.Metrics
	logger      *golog.Logger

	marketsMu sync.RWMutex
	markets   map[string]models.Market
	symbols   map[string]string // BTCUSDT -> BTC/USDT
}

// binanceResponse represents a generic Binance API error payload
type binanceResponse struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"msg,omitempty"`
}

// BinanceOption configures a BinanceVenue
type BinanceOption func(*BinanceVenue)

// WithBinanceBaseURL points the venue at another REST host
func WithBinanceBaseURL(baseURL string) BinanceOption {
	return func(v *BinanceVenue) {
		if baseURL != "" {
			v.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithBinanceTestnet switches to the spot testnet host
func WithBinanceTestnet(testnet bool) BinanceOption {
	return func(v *BinanceVenue) {
		if testnet {
			v.baseURL = "https://testnet.binance.vision"
		}
	}
}

// WithBinanceHTTPTimeout overrides the per-request timeout
func WithBinanceHTTPTimeout(timeout time.Duration) BinanceOption {
	return func(v *BinanceVenue) {
		if timeout > 0 {
			v.httpTimeout = timeout
		}
	}
}

// WithBinanceMaxRetries sets transport-level retries. Zero keeps one attempt per call.
func WithBinanceMaxRetries(retries int) BinanceOption {
	return func(v *BinanceVenue) {
		if retries >= 0 {
			v.maxRetries = retries
		}
	}
}

// WithBinanceMetrics reports HTTP metrics to gotrademetrics
func WithBinanceMetrics(m *metrics.Metrics) BinanceOption {
	return func(v *BinanceVenue) {
		v.metrics = m
	}
}

// NewBinanceVenue creates a Binance venue. Empty credentials fall back to
// BINANCE_API_KEY and BINANCE_API_SECRET from the environment.
func NewBinanceVenue(id, apiKey, apiSecret string, interval time.Duration, opts ...BinanceOption) *BinanceVenue {
	if apiKey == "" {
		apiKey = os.Getenv("BINANCE_API_KEY")
	}
	if apiSecret == "" {
		apiSecret = os.Getenv("BINANCE_API_SECRET")
	}

	v := &BinanceVenue{
		capabilitySet: capabilitySet(AllCapabilities),
		id:            id,
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		interval:      interval,
		baseURL:       "https://api.binance.com",
		httpTimeout:   binanceHTTPTimeout,
		logger:        logutil.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.httpClient = v.newHTTPClient()
	return v
}

func (v *BinanceVenue) newHTTPClient() *gohttpcl.Client {
	opts := []gohttpcl.Option{
		gohttpcl.WithMaxRetries(v.maxRetries),
		gohttpcl.WithMinBackoff(150 * time.Millisecond),
		gohttpcl.WithMaxBackoff(15 * time.Second),
		gohttpcl.WithBackoffFactor(2.0),
		gohttpcl.WithBackoffStrategy(gohttpcl.BackoffExponential),
		gohttpcl.WithRetryBudget(0.2, time.Minute),
		gohttpcl.WithTimeout(v.httpTimeout),
		gohttpcl.WithDefaultHeader("X-MBX-APIKEY", v.apiKey),
	}
	if collector := newVenueMetricsCollector(v.metrics, v.id); collector != nil {
		opts = append(opts, gohttpcl.WithMetrics(collector))
	}
	return gohttpcl.New(opts...)
}

func (v *BinanceVenue) ID() string                     { return v.id }
func (v *BinanceVenue) Name() string                   { return "Binance" }
func (v *BinanceVenue) MinCallInterval() time.Duration { return v.interval }

// sign adds timestamp and HMAC SHA256 signature to request parameters
func (v *BinanceVenue) sign(params url.Values) url.Values {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("signature", createHMACSHA256Signature(params.Encode(), v.apiSecret))
	return params
}

func (v *BinanceVenue) doRequest(ctx context.Context, method, target string, body []byte, headers map[string]string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	options := headerOptions(headers)
	var (
		resp *http.Response
		err  error
	)
	switch method {
	case http.MethodGet:
		resp, err = v.httpClient.Get(ctx, target, v.httpTimeout, nil, options...)
	case http.MethodPost:
		resp, err = v.httpClient.Post(ctx, target, bytes.NewReader(body), v.httpTimeout, nil, options...)
	case http.MethodDelete:
		resp, err = v.httpClient.Delete(ctx, target, v.httpTimeout, nil, options...)
	default:
		return nil, NewValidationError("unsupported_method", fmt.Sprintf("unsupported HTTP method %s", method)).WithVenue(v.id)
	}
	if err != nil {
		return nil, NewNetworkError("request_failed", fmt.Sprintf("%s %s", method, endpointLabel("", target)), err, true).WithVenue(v.id)
	}
	defer resp.Body.Close()
	payload, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, NewNetworkError("read_failed", "failed to read response body", readErr, true).WithVenue(v.id)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := string(payload)
		var apiErr binanceResponse
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Message != "" {
			msg = fmt.Sprintf("%d: %s", apiErr.Code, apiErr.Message)
		}
		return nil, NewExchangeHTTPError(resp.StatusCode, payload, msg).WithVenue(v.id)
	}
	return payload, nil
}

func (v *BinanceVenue) get(ctx context.Context, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params = v.sign(params)
	}
	target := v.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return v.doRequest(ctx, http.MethodGet, target, nil, nil)
}

func (v *BinanceVenue) decode(payload []byte, out interface{}, what string) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return NewParsingError(fmt.Sprintf("failed to parse %s", what), err, payload).WithVenue(v.id)
	}
	return nil
}

func headerOptions(headers map[string]string) []gohttpcl.ReqOption {
	if len(headers) == 0 {
		return nil
	}
	options := make([]gohttpcl.ReqOption, 0, len(headers))
	for k, val := range headers {
		options = append(options, gohttpcl.WithHeader(k, val))
	}
	return options
}

// createHMACSHA256Signature generates an HMAC SHA256 signature
func createHMACSHA256Signature(payload, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// toBinanceSymbol converts "BTC/USDT" to "BTCUSDT"
func toBinanceSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(symbol, "/", ""), "-", ""))
}

// fromBinanceSymbol converts a venue symbol back to BASE/QUOTE. Symbols missing
// from exchangeInfo fall back to a suffix guess over common quotes.
func (v *BinanceVenue) fromBinanceSymbol(raw string) string {
	v.marketsMu.RLock()
	symbol, ok := v.symbols[raw]
	v.marketsMu.RUnlock()
	if ok {
		return symbol
	}
	for _, quote := range []string{"USDT", "BUSD", "USDC", "FDUSD", "BTC", "ETH", "BNB", "EUR"} {
		if strings.HasSuffix(raw, quote) && len(raw) > len(quote) {
			return strings.TrimSuffix(raw, quote) + "/" + quote
		}
	}
	return raw
}

// precisionFromStep turns a tick size such as "0.00100000" into 3.
func precisionFromStep(step string) int {
	step = strings.TrimRight(step, "0")
	idx := strings.IndexByte(step, '.')
	if idx < 0 {
		return 0
	}
	return len(step) - idx - 1
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// Markets loads exchangeInfo once and keeps it for the life of the venue
func (v *BinanceVenue) Markets(ctx context.Context) (map[string]models.Market, error) {
	v.marketsMu.RLock()
	if v.markets != nil {
		out := v.markets
		v.marketsMu.RUnlock()
		return out, nil
	}
	v.marketsMu.RUnlock()

	payload, err := v.get(ctx, "/api/v3/exchangeInfo", nil, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange info: %w", err)
	}

	var info struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			Status     string `json:"status"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
			Filters    []struct {
				FilterType string `json:"filterType"`
				TickSize   string `json:"tickSize"`
				StepSize   string `json:"stepSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := v.decode(payload, &info, "exchange info"); err != nil {
		return nil, err
	}

	markets := make(map[string]models.Market, len(info.Symbols))
	symbols := make(map[string]string, len(info.Symbols))
	for _, s := range info.Symbols {
		symbol := s.BaseAsset + "/" + s.QuoteAsset
		market := models.Market{
			Symbol:          symbol,
			Base:            s.BaseAsset,
			Quote:           s.QuoteAsset,
			Active:          s.Status == "TRADING",
			PricePrecision:  8,
			AmountPrecision: 8,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				market.PricePrecision = precisionFromStep(f.TickSize)
			case "LOT_SIZE":
				market.AmountPrecision = precisionFromStep(f.StepSize)
			}
		}
		markets[symbol] = market
		symbols[s.Symbol] = symbol
	}

	v.marketsMu.Lock()
	v.markets = markets
	v.symbols = symbols
	v.marketsMu.Unlock()

	v.logger.Debug("Loaded markets",
		golog.String("component", binanceComponent),
		golog.String("venue", v.id),
		golog.Int("count", len(markets)),
	)
	return markets, nil
}

type binanceTicker struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	BidPrice           string `json:"bidPrice"`
	AskPrice           string `json:"askPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	CloseTime          int64  `json:"closeTime"`
}

func (v *BinanceVenue) toTicker(t binanceTicker) models.Ticker {
	return models.Ticker{
		Exchange:    v.id,
		Symbol:      v.fromBinanceSymbol(t.Symbol),
		Bid:         parseFloat(t.BidPrice),
		Ask:         parseFloat(t.AskPrice),
		Last:        parseFloat(t.LastPrice),
		BaseVolume:  parseFloat(t.Volume),
		QuoteVolume: parseFloat(t.QuoteVolume),
		Change:      parseFloat(t.PriceChangePercent),
		Timestamp:   time.UnixMilli(t.CloseTime),
	}
}

// FetchTickers returns every 24h ticker keyed by BASE/QUOTE symbol
func (v *BinanceVenue) FetchTickers(ctx context.Context) (map[string]models.Ticker, error) {
	// Symbol mapping needs exchangeInfo; a failure here only degrades to suffix guessing.
	if _, err := v.Markets(ctx); err != nil {
		v.logger.Warn("Market metadata unavailable, guessing symbols",
			golog.String("component", binanceComponent),
			golog.String("venue", v.id),
			golog.String("error", err.Error()),
		)
	}

	payload, err := v.get(ctx, "/api/v3/ticker/24hr", nil, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickers: %w", err)
	}
	var raw []binanceTicker
	if err := v.decode(payload, &raw, "tickers"); err != nil {
		return nil, err
	}

	tickers := make(map[string]models.Ticker, len(raw))
	for _, t := range raw {
		ticker := v.toTicker(t)
		tickers[ticker.Symbol] = ticker
	}
	return tickers, nil
}

// FetchTicker returns the 24h ticker of one symbol
func (v *BinanceVenue) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", toBinanceSymbol(symbol))
	payload, err := v.get(ctx, "/api/v3/ticker/24hr", params, false)
	if err != nil {
		return models.Ticker{}, fmt.Errorf("failed to fetch ticker: %w", err)
	}
	var raw binanceTicker
	if err := v.decode(payload, &raw, "ticker"); err != nil {
		return models.Ticker{}, err
	}
	ticker := v.toTicker(raw)
	ticker.Symbol = symbol
	return ticker, nil
}

// FetchBalance returns free, locked and total amounts for every asset on the account
func (v *BinanceVenue) FetchBalance(ctx context.Context) (models.BalanceSheet, error) {
	payload, err := v.get(ctx, "/api/v3/account", nil, true)
	if err != nil {
		return models.BalanceSheet{}, fmt.Errorf("failed to get account info: %w", err)
	}

	var account struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := v.decode(payload, &account, "account info"); err != nil {
		return models.BalanceSheet{}, err
	}

	sheet := models.NewBalanceSheet()
	for _, b := range account.Balances {
		sheet.Free[b.Asset] = b.Free
		sheet.Used[b.Asset] = b.Locked
		free, freeErr := strconv.ParseFloat(b.Free, 64)
		locked, lockedErr := strconv.ParseFloat(b.Locked, 64)
		if freeErr == nil && lockedErr == nil {
			sheet.Total[b.Asset] = strconv.FormatFloat(free+locked, 'f', -1, 64)
		}
	}
	return sheet, nil
}

type binanceOrder struct {
	Symbol                  string `json:"symbol"`
	OrderID                 int64  `json:"orderId"`
	Price                   string `json:"price"`
	OrigQty                 string `json:"origQty"`
	ExecutedQty             string `json:"executedQty"`
	CumulativeQuoteQuantity string `json:"cummulativeQuoteQty"`
	Status                  string `json:"status"`
	Type                    string `json:"type"`
	Side                    string `json:"side"`
	Time                    int64  `json:"time"`
	TransactTime            int64  `json:"transactTime"`
}

func (v *BinanceVenue) toOpenOrder(o binanceOrder, symbol string) models.OpenOrder {
	price := parseFloat(o.Price)
	filled := parseFloat(o.ExecutedQty)
	cost := parseFloat(o.CumulativeQuoteQuantity)
	if cost == 0 {
		cost = price * filled
	}
	ts := o.Time
	if ts == 0 {
		ts = o.TransactTime
	}
	if symbol == "" {
		symbol = v.fromBinanceSymbol(o.Symbol)
	}
	return models.OpenOrder{
		Timestamp: time.UnixMilli(ts),
		Exchange:  v.id,
		Side:      models.OrderSide(strings.ToLower(o.Side)),
		Symbol:    symbol,
		ID:        strconv.FormatInt(o.OrderID, 10),
		Type:      models.OrderType(strings.ToLower(o.Type)),
		Status:    strings.ToLower(o.Status),
		Price:     price,
		Cost:      cost,
		Amount:    parseFloat(o.OrigQty),
		Filled:    filled,
	}
}

// FetchOpenOrders retrieves all open orders for a symbol
func (v *BinanceVenue) FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", toBinanceSymbol(symbol))
	}
	payload, err := v.get(ctx, "/api/v3/openOrders", params, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	var raw []binanceOrder
	if err := v.decode(payload, &raw, "open orders"); err != nil {
		return nil, err
	}
	orders := make([]models.OpenOrder, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, v.toOpenOrder(o, symbol))
	}
	return orders, nil
}

// FetchOHLCV returns candlestick data for a symbol
func (v *BinanceVenue) FetchOHLCV(ctx context.Context, symbol, timeframe string, since time.Time, limit int, _ Params) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", toBinanceSymbol(symbol))
	params.Set("interval", timeframe)
	if !since.IsZero() {
		params.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	}
	if limit <= 0 {
		limit = binanceDefaultKlines
	}
	if limit > binanceMaxKlines {
		limit = binanceMaxKlines
	}
	params.Set("limit", strconv.Itoa(limit))

	payload, err := v.get(ctx, "/api/v3/klines", params, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles: %w", err)
	}

	var klines [][]interface{}
	if err := v.decode(payload, &klines, "candles"); err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, kline := range klines {
		candle, err := parseKline(kline)
		if err != nil {
			return nil, NewParsingError("invalid kline", err, payload).WithVenue(v.id)
		}
		candle.Exchange = v.id
		candle.Symbol = symbol
		candle.Interval = timeframe
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseKline reads [openTime, open, high, low, close, volume, closeTime, ...].
func parseKline(kline []interface{}) (models.Candle, error) {
	if len(kline) < 7 {
		return models.Candle{}, fmt.Errorf("expected at least 7 elements, got %d", len(kline))
	}
	openTime, ok := kline[0].(float64)
	if !ok {
		return models.Candle{}, fmt.Errorf("invalid openTime type: %T", kline[0])
	}
	closeTime, ok := kline[6].(float64)
	if !ok {
		return models.Candle{}, fmt.Errorf("invalid closeTime type: %T", kline[6])
	}
	values := make([]float64, 5)
	for i := range values {
		s, ok := kline[i+1].(string)
		if !ok {
			return models.Candle{}, fmt.Errorf("invalid field %d type: %T", i+1, kline[i+1])
		}
		values[i] = parseFloat(s)
	}
	return models.Candle{
		OpenTime:  time.UnixMilli(int64(openTime)),
		CloseTime: time.UnixMilli(int64(closeTime)),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

// CreateOrder places a spot order. Limit orders are GTC.
func (v *BinanceVenue) CreateOrder(ctx context.Context, symbol string, orderType models.OrderType, side models.OrderSide, amount, price float64, _ Params) (models.OpenOrder, error) {
	if amount <= 0 {
		return models.OpenOrder{}, NewValidationError("invalid_amount", "order quantity must be greater than 0").WithVenue(v.id)
	}
	params := url.Values{}
	params.Set("symbol", toBinanceSymbol(symbol))
	params.Set("side", strings.ToUpper(side.String()))
	params.Set("type", strings.ToUpper(orderType.String()))
	params.Set("quantity", strconv.FormatFloat(amount, 'f', -1, 64))
	if orderType == models.OrderTypeLimit {
		if price <= 0 {
			return models.OpenOrder{}, NewValidationError("invalid_price", "limit order price must be greater than 0").WithVenue(v.id)
		}
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	}
	params = v.sign(params)

	payload, err := v.doRequest(ctx, http.MethodPost, v.baseURL+"/api/v3/order", []byte(params.Encode()), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
	if err != nil {
		return models.OpenOrder{}, fmt.Errorf("failed to place order: %w", err)
	}
	var raw binanceOrder
	if err := v.decode(payload, &raw, "order response"); err != nil {
		return models.OpenOrder{}, err
	}

	order := v.toOpenOrder(raw, symbol)
	v.logger.Info("Order placed",
		golog.String("component", binanceComponent),
		golog.String("venue", v.id),
		golog.String("symbol", symbol),
		golog.String("order_id", order.ID),
	)
	return order, nil
}

// CancelOrder cancels an open order
func (v *BinanceVenue) CancelOrder(ctx context.Context, orderID, symbol string, _ Params) error {
	params := url.Values{}
	params.Set("symbol", toBinanceSymbol(symbol))
	params.Set("orderId", orderID)
	params = v.sign(params)

	if _, err := v.doRequest(ctx, http.MethodDelete, v.baseURL+"/api/v3/order?"+params.Encode(), nil, nil); err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	return nil
}
