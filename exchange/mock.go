package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evdnx/tradingcp/models"
)

// MockVenue is an in-memory venue for tests, dry runs and the "mock" venue type.
// Every remote call can be forced to fail per operation.
type MockVenue struct {
	capabilitySet
	id       string
	interval time.Duration

	mu       sync.RWMutex
	markets  map[string]models.Market
	tickers  map[string]models.Ticker
	balance  models.BalanceSheet
	orders   map[string]models.OpenOrder
	candles  map[string][]models.Candle
	failures map[string]error
	delay    time.Duration

	nextID int64
	calls  sync.Map // operation -> *int64
}

// NewMockVenue creates a mock venue with every capability enabled
func NewMockVenue(id string, interval time.Duration) *MockVenue {
	return &MockVenue{
		capabilitySet: capabilitySet(AllCapabilities),
		id:            id,
		interval:      interval,
		markets:       make(map[string]models.Market),
		tickers:       make(map[string]models.Ticker),
		balance:       models.NewBalanceSheet(),
		orders:        make(map[string]models.OpenOrder),
		candles:       make(map[string][]models.Candle),
		failures:      make(map[string]error),
	}
}

func (m *MockVenue) ID() string                     { return m.id }
func (m *MockVenue) Name() string                   { return "Mock " + m.id }
func (m *MockVenue) MinCallInterval() time.Duration { return m.interval }

// SetCapabilities replaces the advertised capabilities
func (m *MockVenue) SetCapabilities(caps ...Capability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capabilitySet = capabilitySet(caps)
}

// Has checks capabilities under the venue lock
func (m *MockVenue) Has(capability Capability) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.capabilitySet.Has(capability)
}

// Capabilities returns a copy of the advertised capabilities
func (m *MockVenue) Capabilities() []Capability {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.capabilitySet.Capabilities()
}

// SetTicker stores a ticker and an active market for its symbol
func (m *MockVenue) SetTicker(symbol string, bid, ask float64) *MockVenue {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers[symbol] = models.Ticker{
		Exchange:  m.id,
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Last:      bid,
		Timestamp: time.Now(),
	}
	if _, ok := m.markets[symbol]; !ok {
		m.markets[symbol] = mockMarket(symbol)
	}
	return m
}

// PutTicker stores a fully specified ticker
func (m *MockVenue) PutTicker(ticker models.Ticker) *MockVenue {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticker.Exchange = m.id
	m.tickers[ticker.Symbol] = ticker
	if _, ok := m.markets[ticker.Symbol]; !ok {
		m.markets[ticker.Symbol] = mockMarket(ticker.Symbol)
	}
	return m
}

// SetMarket overrides market metadata
func (m *MockVenue) SetMarket(market models.Market) *MockVenue {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets[market.Symbol] = market
	return m
}

// SetBalance stores raw balance strings for a coin. An empty total is left absent.
func (m *MockVenue) SetBalance(coin, free, used, total string) *MockVenue {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance.Free[coin] = free
	m.balance.Used[coin] = used
	if total != "" {
		m.balance.Total[coin] = total
	}
	return m
}

// AddOrder stores an open order
func (m *MockVenue) AddOrder(order models.OpenOrder) *MockVenue {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.Exchange = m.id
	m.orders[order.ID] = order
	return m
}

// SetCandles stores candles returned for symbol and timeframe
func (m *MockVenue) SetCandles(symbol, timeframe string, candles []models.Candle) *MockVenue {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[symbol+"|"+timeframe] = candles
	return m
}

// FailWith forces an operation ("fetchTickers", "fetchBalance", ...) to return err.
// A nil err clears the failure.
func (m *MockVenue) FailWith(operation string, err error) *MockVenue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, operation)
	} else {
		m.failures[operation] = err
	}
	return m
}

// SetDelay makes every remote call sleep before answering
func (m *MockVenue) SetDelay(d time.Duration) *MockVenue {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Calls reports how many times an operation was invoked
func (m *MockVenue) Calls(operation string) int64 {
	if v, ok := m.calls.Load(operation); ok {
		return atomic.LoadInt64(v.(*int64))
	}
	return 0
}

func (m *MockVenue) enter(ctx context.Context, operation string) error {
	counter, _ := m.calls.LoadOrStore(operation, new(int64))
	atomic.AddInt64(counter.(*int64), 1)

	m.mu.RLock()
	delay := m.delay
	err := m.failures[operation]
	m.mu.RUnlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return NewNetworkError("context_done", operation+" interrupted", ctx.Err(), false).WithVenue(m.id)
		}
	}
	return err
}

// Markets returns a copy of the configured markets
func (m *MockVenue) Markets(ctx context.Context) (map[string]models.Market, error) {
	if err := m.enter(ctx, "markets"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.Market, len(m.markets))
	for k, v := range m.markets {
		out[k] = v
	}
	return out, nil
}

// FetchTickers returns a copy of every stored ticker
func (m *MockVenue) FetchTickers(ctx context.Context) (map[string]models.Ticker, error) {
	if err := m.enter(ctx, "fetchTickers"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.Ticker, len(m.tickers))
	for k, v := range m.tickers {
		out[k] = v
	}
	return out, nil
}

// FetchTicker returns a stored ticker
func (m *MockVenue) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	if err := m.enter(ctx, "fetchTicker"); err != nil {
		return models.Ticker{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ticker, ok := m.tickers[symbol]
	if !ok {
		return models.Ticker{}, NewExchangeError(ErrorTypeExchange, "bad_symbol", fmt.Sprintf("unknown symbol %s", symbol), nil).WithVenue(m.id)
	}
	return ticker, nil
}

// FetchBalance returns a copy of the stored balance sheet
func (m *MockVenue) FetchBalance(ctx context.Context) (models.BalanceSheet, error) {
	if err := m.enter(ctx, "fetchBalance"); err != nil {
		return models.BalanceSheet{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := models.NewBalanceSheet()
	for k, v := range m.balance.Free {
		out.Free[k] = v
	}
	for k, v := range m.balance.Used {
		out.Used[k] = v
	}
	for k, v := range m.balance.Total {
		out.Total[k] = v
	}
	return out, nil
}

// FetchOpenOrders returns stored orders for symbol ordered by id
func (m *MockVenue) FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	if err := m.enter(ctx, "fetchOpenOrders"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	orders := make([]models.OpenOrder, 0, len(m.orders))
	for _, order := range m.orders {
		if symbol == "" || order.Symbol == symbol {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

// FetchOHLCV returns stored candles, or a synthetic flat series when none were set
func (m *MockVenue) FetchOHLCV(ctx context.Context, symbol, timeframe string, since time.Time, limit int, _ Params) ([]models.Candle, error) {
	if err := m.enter(ctx, "fetchOHLCV"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	stored, ok := m.candles[symbol+"|"+timeframe]
	ticker := m.tickers[symbol]
	m.mu.RUnlock()

	if ok {
		out := make([]models.Candle, len(stored))
		copy(out, stored)
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}

	price := ticker.Last
	if price == 0 {
		price = 100
	}
	candles := make([]models.Candle, limit)
	for i := range candles {
		open := since.Add(time.Duration(i) * time.Minute)
		candles[i] = models.Candle{
			Exchange:  m.id,
			Symbol:    symbol,
			Interval:  timeframe,
			OpenTime:  open,
			CloseTime: open.Add(time.Minute),
			Open:      price,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    5,
		}
	}
	return candles, nil
}

// CreateOrder records the order as open and returns it
func (m *MockVenue) CreateOrder(ctx context.Context, symbol string, orderType models.OrderType, side models.OrderSide, amount, price float64, _ Params) (models.OpenOrder, error) {
	if err := m.enter(ctx, "createOrder"); err != nil {
		return models.OpenOrder{}, err
	}
	order := models.OpenOrder{
		Timestamp: time.Now(),
		Exchange:  m.id,
		Side:      side,
		Symbol:    symbol,
		ID:        fmt.Sprintf("%s-%d", m.id, atomic.AddInt64(&m.nextID, 1)),
		Type:      orderType,
		Status:    "open",
		Price:     price,
		Amount:    amount,
	}
	m.mu.Lock()
	m.orders[order.ID] = order
	m.mu.Unlock()
	return order, nil
}

// CancelOrder removes a tracked order
func (m *MockVenue) CancelOrder(ctx context.Context, orderID, symbol string, _ Params) error {
	if err := m.enter(ctx, "cancelOrder"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok || order.Symbol != symbol {
		return NewExchangeError(ErrorTypeExchange, "order_not_found", fmt.Sprintf("order %s not found", orderID), nil).WithVenue(m.id)
	}
	delete(m.orders, orderID)
	return nil
}

func mockMarket(symbol string) models.Market {
	market := models.Market{Symbol: symbol, Active: true, PricePrecision: 8, AmountPrecision: 8}
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			market.Base = symbol[:i]
			market.Quote = symbol[i+1:]
			break
		}
	}
	return market
}
