package tradingcp

import (
	"time"

	"github.com/evdnx/tradingcp/index"
)

// Snapshot is one published view of every index. Nothing reachable from a
// published snapshot is modified afterwards; a reload publishes a new one.
type Snapshot struct {
	Prices       *index.PriceIndex        `json:"prices"`
	Availability *index.QuoteAvailability `json:"availability"`
	Balances     *index.BalanceIndex      `json:"balances"`
	OpenOrders   *index.OpenOrderIndex    `json:"openOrders"`
	Health       map[string]VenueHealth   `json:"health"`

	PricesAt     time.Time `json:"pricesAt"`
	BalancesAt   time.Time `json:"balancesAt"`
	OpenOrdersAt time.Time `json:"openOrdersAt"`
	PublishedAt  time.Time `json:"publishedAt"`
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Prices:       index.NewPriceIndex(),
		Availability: index.NewQuoteAvailability(),
		Balances:     index.NewBalanceIndex(),
		OpenOrders:   index.NewOpenOrderIndex(),
		Health:       map[string]VenueHealth{},
	}
}

// clone copies the index pointers; the indices themselves are shared
func (s *Snapshot) clone() *Snapshot {
	out := *s
	return &out
}

// Ready reports whether prices have been loaded at least once
func (s *Snapshot) Ready() bool {
	return !s.PricesAt.IsZero()
}
