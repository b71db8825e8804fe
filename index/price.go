package index

import (
	"github.com/evdnx/tradingcp/models"
)

// Side is the book side a price was read from
type Side string

const (
	Bid Side = "BID"
	Ask Side = "ASK"
)

// Sides lists both sides in a stable order
var Sides = []Side{Ask, Bid}

// PriceTree is quote -> outer key -> inner key -> price
type PriceTree map[string]map[string]map[string]float64

func (t PriceTree) set(quote, outer, inner string, price float64) {
	byOuter, ok := t[quote]
	if !ok {
		byOuter = make(map[string]map[string]float64)
		t[quote] = byOuter
	}
	byInner, ok := byOuter[outer]
	if !ok {
		byInner = make(map[string]float64)
		byOuter[outer] = byInner
	}
	byInner[inner] = price
}

// PriceIndex holds every price twice: ByVenue[side][quote][venue][coin] and
// ByCoin[side][quote][coin][venue], with identical values.
type PriceIndex struct {
	ByVenue map[Side]PriceTree `json:"byVenue"`
	ByCoin  map[Side]PriceTree `json:"byCoin"`
}

// QuoteAvailability counts listed pairs per venue and quote, in both directions
type QuoteAvailability struct {
	VenueQuotes map[string]map[string]int `json:"venueQuotes"`
	QuoteVenues map[string]map[string]int `json:"quoteVenues"`
}

// NewPriceIndex returns an empty index with both sides present
func NewPriceIndex() *PriceIndex {
	idx := &PriceIndex{
		ByVenue: make(map[Side]PriceTree, len(Sides)),
		ByCoin:  make(map[Side]PriceTree, len(Sides)),
	}
	for _, side := range Sides {
		idx.ByVenue[side] = make(PriceTree)
		idx.ByCoin[side] = make(PriceTree)
	}
	return idx
}

// NewQuoteAvailability returns empty availability counters
func NewQuoteAvailability() *QuoteAvailability {
	return &QuoteAvailability{
		VenueQuotes: make(map[string]map[string]int),
		QuoteVenues: make(map[string]map[string]int),
	}
}

// BuildPriceIndex indexes tickers keyed by venue then symbol.
// Tickers without a bid are skipped entirely, ask included.
func BuildPriceIndex(tickersByVenue map[string]map[string]models.Ticker) (*PriceIndex, *QuoteAvailability) {
	prices := NewPriceIndex()
	avail := NewQuoteAvailability()

	for _, venue := range sortedKeys(tickersByVenue) {
		tickers := tickersByVenue[venue]
		for _, symbol := range sortedKeys(tickers) {
			ticker := tickers[symbol]
			if ticker.Bid == 0 {
				continue
			}
			coin, quote, ok := ParseSymbol(symbol)
			if !ok {
				continue
			}

			prices.ByVenue[Ask].set(quote, venue, coin, ticker.Ask)
			prices.ByVenue[Bid].set(quote, venue, coin, ticker.Bid)
			prices.ByCoin[Ask].set(quote, coin, venue, ticker.Ask)
			prices.ByCoin[Bid].set(quote, coin, venue, ticker.Bid)

			avail.increment(venue, quote)
		}
	}
	return prices, avail
}

// Price returns the side price of coin/quote on venue
func (p *PriceIndex) Price(side Side, quote, venue, coin string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	price, ok := p.ByVenue[side][quote][venue][coin]
	return price, ok
}

// VenuePrices returns coin -> price for one venue. The map must not be modified.
func (p *PriceIndex) VenuePrices(side Side, quote, venue string) (map[string]float64, bool) {
	if p == nil {
		return nil, false
	}
	prices, ok := p.ByVenue[side][quote][venue]
	return prices, ok
}

// CoinPrices returns venue -> price for one coin. The map must not be modified.
func (p *PriceIndex) CoinPrices(side Side, quote, coin string) (map[string]float64, bool) {
	if p == nil {
		return nil, false
	}
	prices, ok := p.ByCoin[side][quote][coin]
	return prices, ok
}

// Coins returns the coins priced against quote, sorted
func (p *PriceIndex) Coins(side Side, quote string) []string {
	if p == nil {
		return nil
	}
	return sortedKeys(p.ByCoin[side][quote])
}

// Venues returns the venues pricing anything against quote, sorted
func (p *PriceIndex) Venues(side Side, quote string) []string {
	if p == nil {
		return nil
	}
	return sortedKeys(p.ByVenue[side][quote])
}

// Quotes returns every quote with at least one price, sorted
func (p *PriceIndex) Quotes() []string {
	if p == nil {
		return nil
	}
	return sortedKeys(p.ByVenue[Bid])
}

func (a *QuoteAvailability) increment(venue, quote string) {
	if a.VenueQuotes[venue] == nil {
		a.VenueQuotes[venue] = make(map[string]int)
	}
	if a.QuoteVenues[quote] == nil {
		a.QuoteVenues[quote] = make(map[string]int)
	}
	a.VenueQuotes[venue][quote]++
	a.QuoteVenues[quote][venue]++
}

// Has reports whether any venue lists quote
func (a *QuoteAvailability) Has(quote string) bool {
	if a == nil {
		return false
	}
	return len(a.QuoteVenues[quote]) > 0
}

// Count returns how many pairs venue lists against quote
func (a *QuoteAvailability) Count(venue, quote string) int {
	if a == nil {
		return 0
	}
	return a.VenueQuotes[venue][quote]
}

// Lists reports whether venue has at least one pair against quote
func (a *QuoteAvailability) Lists(venue, quote string) bool {
	return a.Count(venue, quote) > 0
}

// VenuesFor returns the venues listing quote, sorted
func (a *QuoteAvailability) VenuesFor(quote string) []string {
	if a == nil {
		return nil
	}
	return sortedKeys(a.QuoteVenues[quote])
}

// Quotes returns every listed quote, sorted
func (a *QuoteAvailability) Quotes() []string {
	if a == nil {
		return nil
	}
	return sortedKeys(a.QuoteVenues)
}
