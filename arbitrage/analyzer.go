// Package arbitrage scans price indices for cross-venue and cross-quote
// opportunities.
package arbitrage

import (
	"github.com/evdnx/tradingcp/index"
)

const (
	// DefaultCrossStockThreshold is the minimum maxBid/minAsk ratio reported.
	DefaultCrossStockThreshold = 1.05
	// DefaultCrossCurrencyThreshold is the minimum round-trip gain reported.
	DefaultCrossCurrencyThreshold = 0.001

	DirectionCrossStock    = "cross-stock"
	DirectionCrossCurrency = "cross-currency"
)

// Opportunity is a detected price discrepancy. Gain is a ratio: 0.02 is 2%.
type Opportunity struct {
	Coin        string             `json:"coin"`
	SourceVenue string             `json:"sourceVenue"`
	SourceQuote string             `json:"sourceQuote"`
	TargetVenue string             `json:"targetVenue"`
	TargetQuote string             `json:"targetQuote"`
	Gain        float64            `json:"gain"`
	Direction   string             `json:"direction"`
	MinAsk      float64            `json:"minAsk,omitempty"`
	MaxBid      float64            `json:"maxBid,omitempty"`
	Ratios      map[string]float64 `json:"ratios,omitempty"`
}

// Config holds the reporting thresholds
type Config struct {
	CrossStockThreshold    float64
	CrossCurrencyThreshold float64
}

// DefaultConfig returns the stock thresholds
func DefaultConfig() Config {
	return Config{
		CrossStockThreshold:    DefaultCrossStockThreshold,
		CrossCurrencyThreshold: DefaultCrossCurrencyThreshold,
	}
}

// Analyzer runs both scans with fixed thresholds. It holds no other state.
type Analyzer struct {
	cfg Config
}

// New creates an analyzer. Non-positive thresholds fall back to defaults.
func New(cfg Config) *Analyzer {
	if cfg.CrossStockThreshold <= 0 {
		cfg.CrossStockThreshold = DefaultCrossStockThreshold
	}
	if cfg.CrossCurrencyThreshold <= 0 {
		cfg.CrossCurrencyThreshold = DefaultCrossCurrencyThreshold
	}
	return &Analyzer{cfg: cfg}
}

// Config returns the thresholds in use
func (a *Analyzer) Config() Config {
	return a.cfg
}

// CrossStock finds coins whose best bid on one venue beats the best ask on
// another by more than the threshold ratio, both quoted in quote.
// Coins are visited in sorted order; the first venue wins ties.
func (a *Analyzer) CrossStock(prices *index.PriceIndex, quote string) []Opportunity {
	var out []Opportunity

	for _, coin := range prices.Coins(index.Ask, quote) {
		asks, _ := prices.CoinPrices(index.Ask, quote, coin)
		bids, ok := prices.CoinPrices(index.Bid, quote, coin)
		if !ok || len(asks) == 0 || len(bids) == 0 {
			continue
		}

		var (
			minAsk, maxBid     float64
			minVenue, maxVenue string
			haveAsk, haveBid   bool
		)
		// Venues quoting no ask are stored as zero and take no part in minAsk.
		for _, venue := range sortedKeys(asks) {
			p := asks[venue]
			if p <= 0 {
				continue
			}
			if !haveAsk || p < minAsk {
				minAsk, minVenue, haveAsk = p, venue, true
			}
		}
		for _, venue := range sortedKeys(bids) {
			if p := bids[venue]; !haveBid || p > maxBid {
				maxBid, maxVenue, haveBid = p, venue, true
			}
		}

		if !haveAsk {
			continue
		}
		ratio := maxBid / minAsk
		if ratio <= a.cfg.CrossStockThreshold {
			continue
		}

		ratios := make(map[string]float64, len(bids))
		for venue, bid := range bids {
			if bid != 0 {
				ratios[venue] = bid / minAsk * 100
			}
		}

		out = append(out, Opportunity{
			Coin:        coin,
			SourceVenue: minVenue,
			SourceQuote: quote,
			TargetVenue: maxVenue,
			TargetQuote: quote,
			Gain:        ratio - 1,
			Direction:   DirectionCrossStock,
			MinAsk:      minAsk,
			MaxBid:      maxBid,
			Ratios:      ratios,
		})
	}
	return out
}

// CrossCurrency looks for round trips within one venue: buy coin with quoteA,
// sell it for quoteB, convert quoteB back to quoteA (and the mirror trip).
// Only venues listing both quotes are scanned. Legs with a missing or zero
// price are skipped.
func (a *Analyzer) CrossCurrency(prices *index.PriceIndex, avail *index.QuoteAvailability, quoteA, quoteB string) []Opportunity {
	var out []Opportunity

	for _, venue := range avail.VenuesFor(quoteA) {
		if !avail.Lists(venue, quoteB) {
			continue
		}

		bidsA, _ := prices.VenuePrices(index.Bid, quoteA, venue)
		bidsB, _ := prices.VenuePrices(index.Bid, quoteB, venue)
		bidBInA, okBidB := prices.Price(index.Bid, quoteA, venue, quoteB)
		askBInA, okAskB := prices.Price(index.Ask, quoteA, venue, quoteB)

		for _, coin := range sortedKeys(bidsA) {
			bidB, ok := bidsB[coin]
			if !ok {
				continue
			}
			bidA := bidsA[coin]
			askA, _ := prices.Price(index.Ask, quoteA, venue, coin)
			askB, _ := prices.Price(index.Ask, quoteB, venue, coin)

			// quoteA -> coin -> quoteB -> quoteA
			if okBidB && askA > 0 {
				gain := bidB*bidBInA/askA - 1
				if gain > a.cfg.CrossCurrencyThreshold {
					out = append(out, crossCurrency(coin, venue, quoteA, quoteB, gain))
				}
			}

			// quoteB -> coin -> quoteA -> quoteB
			if okAskB && askBInA > 0 && askB > 0 {
				gain := (bidA/askBInA)/askB - 1
				if gain > a.cfg.CrossCurrencyThreshold {
					out = append(out, crossCurrency(coin, venue, quoteB, quoteA, gain))
				}
			}
		}
	}
	return out
}

func crossCurrency(coin, venue, from, to string, gain float64) Opportunity {
	return Opportunity{
		Coin:        coin,
		SourceVenue: venue,
		SourceQuote: from,
		TargetVenue: venue,
		TargetQuote: to,
		Gain:        gain,
		Direction:   DirectionCrossCurrency,
	}
}
