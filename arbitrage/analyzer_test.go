package arbitrage

import (
	"testing"

	"github.com/evdnx/tradingcp/index"
	"github.com/evdnx/tradingcp/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quote(bid, ask float64) models.Ticker {
	return models.Ticker{Bid: bid, Ask: ask}
}

func build(tickers map[string]map[string]models.Ticker) (*index.PriceIndex, *index.QuoteAvailability) {
	return index.BuildPriceIndex(tickers)
}

func TestNewAppliesDefaults(t *testing.T) {
	a := New(Config{})
	assert.Equal(t, DefaultConfig(), a.Config())

	a = New(Config{CrossStockThreshold: 1.2, CrossCurrencyThreshold: 0.01})
	assert.Equal(t, 1.2, a.Config().CrossStockThreshold)
	assert.Equal(t, 0.01, a.Config().CrossCurrencyThreshold)
}

func TestCrossStock(t *testing.T) {
	prices, _ := build(map[string]map[string]models.Ticker{
		"x": {
			"ETH/BTC": quote(0.05, 0.051),
			"LTC/BTC": quote(0.002, 0.00201),
			"XRP/BTC": quote(0.00002, 0),
		},
		"y": {
			"ETH/BTC": quote(0.056, 0.057),
			"LTC/BTC": quote(0.00202, 0.00203),
			"XRP/BTC": quote(0.00003, 0.000021),
		},
	})

	opps := New(DefaultConfig()).CrossStock(prices, "BTC")
	require.Len(t, opps, 2)

	// x quotes no XRP ask, so y's ask is the minimum
	xrp := opps[1]
	assert.Equal(t, "XRP", xrp.Coin)
	assert.Equal(t, "y", xrp.SourceVenue)
	assert.Equal(t, "y", xrp.TargetVenue)
	assert.Equal(t, 0.000021, xrp.MinAsk)

	opp := opps[0]
	assert.Equal(t, "ETH", opp.Coin)
	assert.Equal(t, DirectionCrossStock, opp.Direction)
	assert.Equal(t, "x", opp.SourceVenue)
	assert.Equal(t, "y", opp.TargetVenue)
	assert.Equal(t, "BTC", opp.SourceQuote)
	assert.Equal(t, "BTC", opp.TargetQuote)
	assert.Equal(t, 0.051, opp.MinAsk)
	assert.Equal(t, 0.056, opp.MaxBid)
	assert.InDelta(t, 0.056/0.051-1, opp.Gain, 1e-12)
	assert.InDelta(t, 0.05/0.051*100, opp.Ratios["x"], 1e-9)
	assert.InDelta(t, 0.056/0.051*100, opp.Ratios["y"], 1e-9)
}

func TestCrossStockIgnoresMissingAsk(t *testing.T) {
	prices, _ := build(map[string]map[string]models.Ticker{
		"v1": {"X/Q": quote(99, 100)},
		"v2": {"X/Q": quote(106, 0)},
	})

	opps := New(DefaultConfig()).CrossStock(prices, "Q")
	require.Len(t, opps, 1)
	assert.Equal(t, "v1", opps[0].SourceVenue)
	assert.Equal(t, "v2", opps[0].TargetVenue)
	assert.Equal(t, 100.0, opps[0].MinAsk)
	assert.InDelta(t, 0.06, opps[0].Gain, 1e-12)
	assert.InDelta(t, 106.0, opps[0].Ratios["v2"], 1e-9)

	// no venue quotes an ask
	prices, _ = build(map[string]map[string]models.Ticker{
		"v1": {"X/Q": quote(99, 0)},
		"v2": {"X/Q": quote(106, 0)},
	})
	assert.Empty(t, New(DefaultConfig()).CrossStock(prices, "Q"))
}

func TestCrossStockThresholdIsExclusive(t *testing.T) {
	prices, _ := build(map[string]map[string]models.Ticker{
		"x": {"ETH/BTC": quote(0.09, 0.1)},
		"y": {"ETH/BTC": quote(0.125, 0.13)},
	})

	assert.Len(t, New(Config{CrossStockThreshold: 1.25}).CrossStock(prices, "BTC"), 0)
	assert.Len(t, New(Config{CrossStockThreshold: 1.2}).CrossStock(prices, "BTC"), 1)
}

func TestCrossStockUnknownQuote(t *testing.T) {
	prices, _ := build(map[string]map[string]models.Ticker{
		"x": {"ETH/BTC": quote(0.05, 0.051)},
	})
	assert.Empty(t, New(DefaultConfig()).CrossStock(prices, "USDT"))
	assert.Empty(t, New(DefaultConfig()).CrossStock(index.NewPriceIndex(), "BTC"))
}

func TestCrossCurrency(t *testing.T) {
	prices, avail := build(map[string]map[string]models.Ticker{
		"v": {
			"ETH/BTC": quote(0.05, 0.0505),
			"LTC/BTC": quote(0.002, 0.00201),
			"LTC/ETH": quote(0.045, 0.0452),
			"XMR/BTC": quote(0.006, 0.0061),
			"XMR/ETH": quote(0.11, 0.1),
		},
		// no ETH/BTC pair, so neither conversion leg exists
		"w": {
			"LTC/BTC": quote(0.002, 0.00201),
			"LTC/ETH": quote(0.045, 0.0452),
		},
		// lists BTC only
		"z": {
			"LTC/BTC": quote(0.003, 0.0031),
		},
	})

	opps := New(DefaultConfig()).CrossCurrency(prices, avail, "BTC", "ETH")
	require.Len(t, opps, 2)

	ltc := opps[0]
	assert.Equal(t, "LTC", ltc.Coin)
	assert.Equal(t, DirectionCrossCurrency, ltc.Direction)
	assert.Equal(t, "v", ltc.SourceVenue)
	assert.Equal(t, "v", ltc.TargetVenue)
	assert.Equal(t, "BTC", ltc.SourceQuote)
	assert.Equal(t, "ETH", ltc.TargetQuote)
	assert.InDelta(t, 0.045*0.05/0.00201-1, ltc.Gain, 1e-12)

	xmr := opps[1]
	assert.Equal(t, "XMR", xmr.Coin)
	assert.Equal(t, "ETH", xmr.SourceQuote)
	assert.Equal(t, "BTC", xmr.TargetQuote)
	assert.InDelta(t, (0.006/0.0505)/0.1-1, xmr.Gain, 1e-12)
}

func TestCrossCurrencyBelowThreshold(t *testing.T) {
	prices, avail := build(map[string]map[string]models.Ticker{
		"v": {
			"ETH/BTC": quote(0.05, 0.05),
			"LTC/BTC": quote(0.002, 0.002),
			"LTC/ETH": quote(0.04, 0.04),
		},
	})

	assert.Empty(t, New(DefaultConfig()).CrossCurrency(prices, avail, "BTC", "ETH"))
}
