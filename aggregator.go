// Package tradingcp aggregates prices, balances and open orders from many
// rate-limited venues and scans them for arbitrage.
package tradingcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evdnx/golog"
	"github.com/evdnx/tradingcp/arbitrage"
	"github.com/evdnx/tradingcp/exchange"
	"github.com/evdnx/tradingcp/fetcher"
	"github.com/evdnx/tradingcp/index"
	"github.com/evdnx/tradingcp/internal/logutil"
	"github.com/evdnx/tradingcp/models"
	"github.com/evdnx/tradingcp/order"
	"github.com/evdnx/tradingcp/ratelimit"
	"github.com/evdnx/tradingcp/timeframe"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownOrder is wrapped by the error returned when cancelling an order
// that is not in the open-order index
var ErrUnknownOrder = errors.New("order not found")

// DefaultQuote is selected until ChangeQuote is called
const DefaultQuote = "BTC"

// AggregatorOption configures an Aggregator
type AggregatorOption func(*Aggregator)

// Aggregator owns the venues, the limiter and the published snapshot.
// Reloads are serialized; readers never block on them.
type Aggregator struct {
	registry *exchange.Registry
	limiter  *ratelimit.Limiter
	fetcher  *fetcher.Fetcher
	health   *HealthTracker
	logger   *golog.Logger
	now      func() time.Time

	analyzer atomic.Pointer[arbitrage.Analyzer]
	quote    atomic.Pointer[string]
	snapshot atomic.Pointer[Snapshot]

	reloadMu  sync.Mutex
	listeners []func(*Snapshot)
}

const aggregatorComponent = "aggregator"

// WithHealthTracker replaces the default health tracker
func WithHealthTracker(h *HealthTracker) AggregatorOption {
	return func(a *Aggregator) {
		a.health = h
	}
}

// WithAnalyzer sets the arbitrage thresholds
func WithAnalyzer(an *arbitrage.Analyzer) AggregatorOption {
	return func(a *Aggregator) {
		a.analyzer.Store(an)
	}
}

// WithQuote sets the initially selected quote
func WithQuote(quote string) AggregatorOption {
	return func(a *Aggregator) {
		q := strings.ToUpper(strings.TrimSpace(quote))
		if q != "" {
			a.quote.Store(&q)
		}
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// OnPublish registers fn to be called with every newly published snapshot
func OnPublish(fn func(*Snapshot)) AggregatorOption {
	return func(a *Aggregator) {
		a.listeners = append(a.listeners, fn)
	}
}

// NewAggregator creates an aggregator over every venue in the registry
func NewAggregator(registry *exchange.Registry, opts ...AggregatorOption) (*Aggregator, error) {
	if registry == nil {
		return nil, exchange.NewConfigurationError("nil_registry", "registry is required")
	}

	a := &Aggregator{
		registry: registry,
		logger:   logutil.Default(),
		now:      time.Now,
	}
	a.analyzer.Store(arbitrage.New(arbitrage.DefaultConfig()))
	quote := DefaultQuote
	a.quote.Store(&quote)
	a.snapshot.Store(emptySnapshot())

	for _, opt := range opts {
		opt(a)
	}
	if a.health == nil {
		a.health = NewHealthTracker(DefaultHealthConfig())
	}

	intervals := make(map[string]time.Duration)
	for _, v := range registry.All() {
		intervals[v.ID()] = v.MinCallInterval()
		a.health.Register(v.ID())
	}
	a.limiter = ratelimit.New(intervals, ratelimit.WithClock(a.now))
	a.fetcher = fetcher.New(a.limiter, fetcher.WithObserver(a.health), fetcher.WithLogger(a.logger))
	return a, nil
}

// Subscribe registers fn to be called with every snapshot published from now on
func (a *Aggregator) Subscribe(fn func(*Snapshot)) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Registry returns the venue registry
func (a *Aggregator) Registry() *exchange.Registry {
	return a.registry
}

// Health returns the venue health tracker
func (a *Aggregator) Health() *HealthTracker {
	return a.health
}

// Limiter returns the shared rate limiter
func (a *Aggregator) Limiter() *ratelimit.Limiter {
	return a.limiter
}

// Snapshot returns the current snapshot. It is never nil.
func (a *Aggregator) Snapshot() *Snapshot {
	return a.snapshot.Load()
}

// Quote returns the selected quote
func (a *Aggregator) Quote() string {
	return *a.quote.Load()
}

// Analyzer returns the analyzer in use
func (a *Aggregator) Analyzer() *arbitrage.Analyzer {
	return a.analyzer.Load()
}

// SetAnalyzer swaps the arbitrage thresholds, e.g. after a config reload
func (a *Aggregator) SetAnalyzer(an *arbitrage.Analyzer) {
	if an != nil {
		a.analyzer.Store(an)
	}
}

// ChangeQuote selects quote for valuation and analysis. The quote must be
// listed by at least one venue in the current snapshot.
func (a *Aggregator) ChangeQuote(quote string) error {
	q := strings.ToUpper(strings.TrimSpace(quote))
	if !a.Snapshot().Availability.Has(q) {
		return exchange.NewValidationError("unknown_quote", fmt.Sprintf("no venue lists quote %q", quote))
	}
	a.quote.Store(&q)
	a.logger.Info("Quote changed",
		golog.String("component", aggregatorComponent),
		golog.String("quote", q),
	)
	return nil
}

// publish must be called with reloadMu held
func (a *Aggregator) publish(next *Snapshot) {
	next.Health = a.health.Statuses()
	next.PublishedAt = a.now()
	a.snapshot.Store(next)
	for _, fn := range a.listeners {
		fn(next)
	}
}

// Reload fetches tickers and balances from every active venue concurrently,
// rebuilds the indices and publishes them in one swap. Failing venues are
// simply missing from the new snapshot.
func (a *Aggregator) Reload(ctx context.Context) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	venues := a.registry.Active()
	a.loadMarkets(ctx, venues)

	var (
		g        errgroup.Group
		tickers  map[string]map[string]models.Ticker
		balances map[string]models.BalanceSheet
	)
	g.Go(func() error {
		tickers = a.fetcher.Tickers(ctx, venues)
		return nil
	})
	g.Go(func() error {
		balances = a.fetcher.Balances(ctx, venues)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	next := a.Snapshot().clone()
	next.Prices, next.Availability = index.BuildPriceIndex(tickers)
	next.Balances = index.BuildBalanceIndex(balances)
	now := a.now()
	next.PricesAt, next.BalancesAt = now, now
	a.publish(next)

	a.logger.Info("Reloaded",
		golog.String("component", aggregatorComponent),
		golog.Int("venues", len(venues)),
		golog.Int("tickerVenues", len(tickers)),
		golog.Int("balanceVenues", len(balances)),
	)
	return nil
}

// ReloadPrices refreshes only the price index and quote availability
func (a *Aggregator) ReloadPrices(ctx context.Context) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	venues := a.registry.Active()
	a.loadMarkets(ctx, venues)
	tickers := a.fetcher.Tickers(ctx, venues)
	if err := ctx.Err(); err != nil {
		return err
	}

	next := a.Snapshot().clone()
	next.Prices, next.Availability = index.BuildPriceIndex(tickers)
	next.PricesAt = a.now()
	a.publish(next)
	return nil
}

// ReloadBalances refreshes only the balance index
func (a *Aggregator) ReloadBalances(ctx context.Context) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	balances := a.fetcher.Balances(ctx, a.registry.Active())
	if err := ctx.Err(); err != nil {
		return err
	}

	next := a.Snapshot().clone()
	next.Balances = index.BuildBalanceIndex(balances)
	next.BalancesAt = a.now()
	a.publish(next)
	return nil
}

// loadMarkets loads market metadata once per venue
func (a *Aggregator) loadMarkets(ctx context.Context, venues []exchange.Venue) {
	var missing []exchange.Venue
	for _, v := range venues {
		if !a.registry.HasMarkets(v.ID()) {
			missing = append(missing, v)
		}
	}
	if len(missing) == 0 {
		return
	}
	for id, markets := range a.fetcher.Markets(ctx, missing) {
		a.registry.SetMarkets(id, markets)
	}
}

func (a *Aggregator) symbol(coin string) string {
	return strings.ToUpper(coin) + "/" + a.Quote()
}

// tradableVenues returns the venues with a bid for coin in the selected quote
// and an active market for it
func (a *Aggregator) tradableVenues(snap *Snapshot, coin string) []exchange.Venue {
	quote := a.Quote()
	symbol := a.symbol(coin)

	var out []exchange.Venue
	for _, id := range snap.Prices.Venues(index.Bid, quote) {
		if _, ok := snap.Prices.Price(index.Bid, quote, id, strings.ToUpper(coin)); !ok {
			continue
		}
		if market, ok := a.registry.Market(id, symbol); !ok || !market.Active {
			continue
		}
		if v, err := a.registry.Venue(id); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// LoadOpenOrders fetches open orders for coin in the selected quote and
// publishes them
func (a *Aggregator) LoadOpenOrders(ctx context.Context, coin string) (*index.OpenOrderIndex, error) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	venues := a.tradableVenues(a.Snapshot(), coin)
	orders := a.fetcher.OpenOrders(ctx, venues, a.symbol(coin))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next := a.Snapshot().clone()
	next.OpenOrders = index.BuildOpenOrderIndex(orders)
	next.OpenOrdersAt = a.now()
	a.publish(next)
	return next.OpenOrders, nil
}

// CrossStock scans the current snapshot in the selected quote
func (a *Aggregator) CrossStock() []Opportunity {
	return a.Analyzer().CrossStock(a.Snapshot().Prices, a.Quote())
}

// CrossCurrency scans the current snapshot for round trips between two quotes
func (a *Aggregator) CrossCurrency(quoteA, quoteB string) []Opportunity {
	snap := a.Snapshot()
	return a.Analyzer().CrossCurrency(snap.Prices, snap.Availability, strings.ToUpper(quoteA), strings.ToUpper(quoteB))
}

// BalanceReport values the current balances in the selected quote
func (a *Aggregator) BalanceReport() BalanceReport {
	snap := a.Snapshot()
	return index.ValueBalances(snap.Prices, snap.Availability, snap.Balances, a.Quote())
}

// OHLCV returns the close series of the last ChartCandles candles of coin on
// venue. Fewer than MinChartCandles candles yields timeframe.ErrNotEnoughData.
func (a *Aggregator) OHLCV(ctx context.Context, venueID, coin, tf string) ([]float64, error) {
	venue, err := a.registry.Venue(venueID)
	if err != nil {
		return nil, err
	}
	if !venue.Has(exchange.CapabilityFetchOHLCV) {
		return nil, exchange.NewValidationError("unsupported", fmt.Sprintf("venue %s does not serve candles", venueID)).WithVenue(venueID)
	}
	if timeframe.Seconds(tf) <= 0 {
		return nil, exchange.NewValidationError("invalid_timeframe", fmt.Sprintf("invalid timeframe %q", tf))
	}

	symbol := a.symbol(coin)
	result := a.fetcher.OHLCV(ctx, []exchange.Venue{venue}, fetcher.OHLCVRequest{
		Symbol:    symbol,
		Timeframe: tf,
		Since:     timeframe.Since(a.now(), tf, timeframe.ChartCandles),
		Limit:     timeframe.ChartCandles,
	})
	candles := result[venueID]
	if len(candles) < timeframe.MinChartCandles {
		return nil, fmt.Errorf("%s on %s: %w", symbol, venueID, timeframe.ErrNotEnoughData)
	}
	return timeframe.CloseSeries(candles), nil
}

// CancelOrder cancels an order present in the open-order index and publishes
// the index without it
func (a *Aggregator) CancelOrder(ctx context.Context, venueID, symbol, id string) error {
	if _, ok := a.Snapshot().OpenOrders.Order(symbol, venueID, id); !ok {
		return exchange.NewExchangeError(exchange.ErrorTypeValidation, "unknown_order",
			fmt.Sprintf("order %s on %s for %s is not open", id, venueID, symbol), ErrUnknownOrder).WithVenue(venueID)
	}
	venue, err := a.registry.Venue(venueID)
	if err != nil {
		return err
	}
	if err := a.limiter.Wait(ctx, venueID); err != nil {
		return err
	}
	if err := venue.CancelOrder(ctx, id, symbol, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", id, err)
	}

	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()
	next := a.Snapshot().clone()
	next.OpenOrders = next.OpenOrders.Without(symbol, venueID, id)
	a.publish(next)

	a.logger.Info(fmt.Sprintf("Order #%s has been cancelled", id),
		golog.String("component", aggregatorComponent),
		golog.String("venue", venueID),
		golog.String("symbol", symbol),
	)
	return nil
}

// BuyCandidates returns the venues that can take a buy of coin
func (a *Aggregator) BuyCandidates(coin string) []string {
	return order.BuyCandidates(a.Snapshot().Prices, strings.ToUpper(coin), a.Quote())
}

// SellCandidates returns the venues that can take a sell of coin
func (a *Aggregator) SellCandidates(coin string) []string {
	snap := a.Snapshot()
	return order.SellCandidates(snap.Prices, snap.Balances, strings.ToUpper(coin), a.Quote())
}

// NewWizard starts an order wizard over the current snapshot
func (a *Aggregator) NewWizard(side models.OrderSide, coin string) (*order.Wizard, error) {
	snap := a.Snapshot()
	return order.NewWizard(order.Config{
		Side:     side,
		Coin:     strings.ToUpper(coin),
		Quote:    a.Quote(),
		Prices:   snap.Prices,
		Balances: snap.Balances,
		Markets:  a.registry,
		Executor: a,
	})
}

// Execute places a wizard ticket after waiting on the venue's limiter
func (a *Aggregator) Execute(ctx context.Context, venueID string, ticket Ticket) (models.OpenOrder, error) {
	venue, err := a.registry.Venue(venueID)
	if err != nil {
		return models.OpenOrder{}, err
	}
	if !venue.Has(exchange.CapabilityCreateOrder) {
		return models.OpenOrder{}, exchange.NewValidationError("unsupported", fmt.Sprintf("venue %s does not place orders", venueID)).WithVenue(venueID)
	}
	if err := a.limiter.Wait(ctx, venueID); err != nil {
		return models.OpenOrder{}, err
	}
	return venue.CreateOrder(ctx, ticket.Symbol, ticket.Type, ticket.Side,
		ticket.Amount.InexactFloat64(), ticket.Price.InexactFloat64(), nil)
}
