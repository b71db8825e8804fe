// Package fetcher runs one rate-limited remote call per venue concurrently and
// collects whatever succeeded.
package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evdnx/golog"
	"github.com/evdnx/tradingcp/exchange"
	"github.com/evdnx/tradingcp/internal/logutil"
	"github.com/evdnx/tradingcp/models"
	"github.com/evdnx/tradingcp/ratelimit"
	"golang.org/x/sync/errgroup"
)

const fetcherComponent = "fetcher"

// Kind names a batch of remote calls
type Kind string

const (
	KindTickers    Kind = "tickers"
	KindBalances   Kind = "balances"
	KindOpenOrders Kind = "openOrders"
	KindOHLCV      Kind = "ohlcv"
	KindMarkets    Kind = "markets"
)

// Capability returns the venue capability a kind needs, if any
func (k Kind) Capability() (exchange.Capability, bool) {
	switch k {
	case KindTickers:
		return exchange.CapabilityFetchTickers, true
	case KindOpenOrders:
		return exchange.CapabilityFetchOpenOrders, true
	case KindOHLCV:
		return exchange.CapabilityFetchOHLCV, true
	default:
		return "", false
	}
}

// Observer is told the outcome of every venue call
type Observer interface {
	RecordSuccess(venue string)
	RecordFailure(venue string, err error)
}

// Fetcher fans calls out over venues, one goroutine each
type Fetcher struct {
	limiter  *ratelimit.Limiter
	observer Observer
	logger   *golog.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithObserver reports per-venue outcomes
func WithObserver(o Observer) Option {
	return func(f *Fetcher) {
		f.observer = o
	}
}

// WithLogger overrides the shared logger
func WithLogger(l *golog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// New creates a fetcher gated by limiter
func New(limiter *ratelimit.Limiter, opts ...Option) *Fetcher {
	f := &Fetcher{
		limiter: limiter,
		logger:  logutil.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Limiter returns the limiter gating this fetcher
func (f *Fetcher) Limiter() *ratelimit.Limiter {
	return f.limiter
}

// FetchAll calls call once per venue, each in its own goroutine after waiting on
// the limiter. A failing venue is logged, reported and left out of the result;
// it never cancels the others. FetchAll returns after every call has settled.
func FetchAll[T any](ctx context.Context, f *Fetcher, kind Kind, venues []exchange.Venue, call func(context.Context, exchange.Venue) (T, error)) map[string]T {
	var (
		mu      sync.Mutex
		results = make(map[string]T, len(venues))
		g       errgroup.Group
	)

	capability, needsCapability := kind.Capability()
	for _, venue := range venues {
		venue := venue
		if needsCapability && !venue.Has(capability) {
			f.logger.Debug("Venue lacks capability, skipping",
				golog.String("component", fetcherComponent),
				golog.String("venue", venue.ID()),
				golog.String("kind", string(kind)),
			)
			continue
		}

		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					f.fail(ctx, kind, venue.ID(), fmt.Errorf("panic: %v", r))
				}
			}()

			start := time.Now()
			if err := f.limiter.Wait(ctx, venue.ID()); err != nil {
				f.fail(ctx, kind, venue.ID(), err)
				return nil
			}

			value, err := call(ctx, venue)
			if err != nil {
				f.fail(ctx, kind, venue.ID(), err)
				return nil
			}

			mu.Lock()
			results[venue.ID()] = value
			mu.Unlock()

			if f.observer != nil {
				f.observer.RecordSuccess(venue.ID())
			}
			f.logger.Debug("Fetched",
				golog.String("component", fetcherComponent),
				golog.String("venue", venue.ID()),
				golog.String("kind", string(kind)),
				golog.String("elapsed", time.Since(start).String()),
			)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// fail logs a venue failure and reports it to the observer. Calls cut short by
// the batch context being cancelled say nothing about the venue and are not reported.
func (f *Fetcher) fail(ctx context.Context, kind Kind, venue string, err error) {
	f.logger.Warn("Venue call failed",
		golog.String("component", fetcherComponent),
		golog.String("venue", venue),
		golog.String("kind", string(kind)),
		golog.String("error", err.Error()),
	)
	if f.observer != nil && ctx.Err() == nil {
		f.observer.RecordFailure(venue, err)
	}
}

// Tickers fetches every ticker from each venue
func (f *Fetcher) Tickers(ctx context.Context, venues []exchange.Venue) map[string]map[string]models.Ticker {
	return FetchAll(ctx, f, KindTickers, venues, func(ctx context.Context, v exchange.Venue) (map[string]models.Ticker, error) {
		return v.FetchTickers(ctx)
	})
}

// Balances fetches the balance sheet of each venue
func (f *Fetcher) Balances(ctx context.Context, venues []exchange.Venue) map[string]models.BalanceSheet {
	return FetchAll(ctx, f, KindBalances, venues, func(ctx context.Context, v exchange.Venue) (models.BalanceSheet, error) {
		return v.FetchBalance(ctx)
	})
}

// OpenOrders fetches open orders for symbol on each venue
func (f *Fetcher) OpenOrders(ctx context.Context, venues []exchange.Venue, symbol string) map[string][]models.OpenOrder {
	return FetchAll(ctx, f, KindOpenOrders, venues, func(ctx context.Context, v exchange.Venue) ([]models.OpenOrder, error) {
		return v.FetchOpenOrders(ctx, symbol)
	})
}

// Markets loads market metadata of each venue
func (f *Fetcher) Markets(ctx context.Context, venues []exchange.Venue) map[string]map[string]models.Market {
	return FetchAll(ctx, f, KindMarkets, venues, func(ctx context.Context, v exchange.Venue) (map[string]models.Market, error) {
		return v.Markets(ctx)
	})
}

// OHLCVRequest describes a candle history query
type OHLCVRequest struct {
	Symbol    string
	Timeframe string
	Since     time.Time
	Limit     int
	Params    exchange.Params
}

// OHLCV fetches candle history from each venue
func (f *Fetcher) OHLCV(ctx context.Context, venues []exchange.Venue, req OHLCVRequest) map[string][]models.Candle {
	return FetchAll(ctx, f, KindOHLCV, venues, func(ctx context.Context, v exchange.Venue) ([]models.Candle, error) {
		return v.FetchOHLCV(ctx, req.Symbol, req.Timeframe, req.Since, req.Limit, req.Params)
	})
}
