package tradingcp

import (
	"context"
	"strings"

	"github.com/evdnx/tradingcp/exchange"
	"github.com/evdnx/tradingcp/fetcher"
	"github.com/evdnx/tradingcp/index"
	"github.com/evdnx/tradingcp/models"
	"golang.org/x/sync/errgroup"
)

// CoinViewRow is one venue's view of a coin in the selected quote
type CoinViewRow struct {
	Venue  string        `json:"venue"`
	Ticker models.Ticker `json:"ticker"`
	// Volume is the quote volume, or base volume times bid when the venue
	// reports no quote volume
	Volume     float64 `json:"volume"`
	Total      float64 `json:"total"`
	Free       float64 `json:"free"`
	TotalValue float64 `json:"totalValue"`
	FreeValue  float64 `json:"freeValue"`
	QuoteFree  float64 `json:"quoteFree"`
}

// CoinView gathers live tickers, holdings and open orders for one coin
type CoinView struct {
	Coin   string        `json:"coin"`
	Quote  string        `json:"quote"`
	Symbol string        `json:"symbol"`
	Rows   []CoinViewRow `json:"rows"`
	// ChartVenue has the highest volume and is the one to chart
	ChartVenue string             `json:"chartVenue,omitempty"`
	OpenOrders []models.OpenOrder `json:"openOrders"`
}

// CoinView fetches a fresh ticker and the open orders for coin on every venue
// that prices it with an active market. The open orders are published.
func (a *Aggregator) CoinView(ctx context.Context, coin string) (CoinView, error) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	coin = strings.ToUpper(coin)
	snap := a.Snapshot()
	quote := a.Quote()
	view := CoinView{Coin: coin, Quote: quote, Symbol: a.symbol(coin)}

	if _, ok := snap.Prices.CoinPrices(index.Bid, quote, coin); !ok {
		return view, exchange.NewValidationError("unknown_coin", "no venue prices "+view.Symbol)
	}
	venues := a.tradableVenues(snap, coin)

	var (
		g       errgroup.Group
		tickers map[string]models.Ticker
		orders  map[string][]models.OpenOrder
	)
	g.Go(func() error {
		tickers = fetcher.FetchAll(ctx, a.fetcher, fetcher.KindTickers, venues, func(ctx context.Context, v exchange.Venue) (models.Ticker, error) {
			return v.FetchTicker(ctx, view.Symbol)
		})
		return nil
	})
	g.Go(func() error {
		orders = a.fetcher.OpenOrders(ctx, venues, view.Symbol)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return view, err
	}

	var highest float64
	for _, v := range venues {
		ticker, ok := tickers[v.ID()]
		if !ok {
			continue
		}
		bid, _ := snap.Prices.Price(index.Bid, quote, v.ID(), coin)
		row := CoinViewRow{
			Venue:  v.ID(),
			Ticker: ticker,
			Volume: ticker.QuoteVolume,
		}
		if row.Volume == 0 {
			row.Volume = ticker.BaseVolume * bid
		}
		if entry, ok := snap.Balances.Entry(coin, v.ID()); ok {
			row.Total, row.Free = entry.Total, entry.Free
		}
		row.TotalValue, row.FreeValue = row.Total, row.Free
		if coin != quote {
			row.TotalValue *= bid
			row.FreeValue *= bid
		}
		row.QuoteFree, _ = snap.Balances.Free(v.ID(), quote)

		if row.Volume > highest {
			highest = row.Volume
			view.ChartVenue = v.ID()
		}
		view.Rows = append(view.Rows, row)
	}

	next := a.Snapshot().clone()
	next.OpenOrders = index.BuildOpenOrderIndex(orders)
	next.OpenOrdersAt = a.now()
	a.publish(next)
	view.OpenOrders = next.OpenOrders.Orders(view.Symbol)
	return view, nil
}
