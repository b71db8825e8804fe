package index

import (
	"github.com/evdnx/tradingcp/models"
)

// TotalKey is the pseudo-venue holding a coin's sum across venues
const TotalKey = "_TOTAL"

// BalanceIndex mirrors per-venue balances: ByCoin[coin][venue] (plus
// ByCoin[coin][TotalKey]) and ByVenue[venue][coin]. Only coins with a
// positive total are kept.
type BalanceIndex struct {
	ByCoin  map[string]map[string]models.BalanceEntry `json:"byCoin"`
	ByVenue map[string]map[string]models.BalanceEntry `json:"byVenue"`
}

// NewBalanceIndex returns an empty index
func NewBalanceIndex() *BalanceIndex {
	return &BalanceIndex{
		ByCoin:  make(map[string]map[string]models.BalanceEntry),
		ByVenue: make(map[string]map[string]models.BalanceEntry),
	}
}

// BuildBalanceIndex indexes balance sheets keyed by venue. Every venue that
// reported appears in ByVenue, even with no positive balances.
func BuildBalanceIndex(balancesByVenue map[string]models.BalanceSheet) *BalanceIndex {
	idx := NewBalanceIndex()

	for _, venue := range sortedKeys(balancesByVenue) {
		sheet := balancesByVenue[venue]
		coins := make(map[string]models.BalanceEntry)
		idx.ByVenue[venue] = coins

		for _, coin := range sortedKeys(sheet.Total) {
			total := ParseOrZero(sheet.Total[coin])
			if total <= 0 {
				continue
			}
			entry := models.BalanceEntry{
				Free:  ParseOrZero(sheet.Free[coin]),
				Used:  ParseOrZero(sheet.Used[coin]),
				Total: total,
			}
			coins[coin] = entry

			byVenue, ok := idx.ByCoin[coin]
			if !ok {
				byVenue = make(map[string]models.BalanceEntry)
				idx.ByCoin[coin] = byVenue
			}
			byVenue[venue] = entry

			sum := byVenue[TotalKey]
			sum.Free += entry.Free
			sum.Used += entry.Used
			sum.Total += entry.Total
			byVenue[TotalKey] = sum
		}
	}
	return idx
}

// Entry returns coin's balance on venue. Pass TotalKey for the sum.
func (b *BalanceIndex) Entry(coin, venue string) (models.BalanceEntry, bool) {
	if b == nil {
		return models.BalanceEntry{}, false
	}
	entry, ok := b.ByCoin[coin][venue]
	return entry, ok
}

// Total returns coin's balance summed over venues
func (b *BalanceIndex) Total(coin string) (models.BalanceEntry, bool) {
	return b.Entry(coin, TotalKey)
}

// Free returns the free amount of coin on venue
func (b *BalanceIndex) Free(venue, coin string) (float64, bool) {
	if b == nil {
		return 0, false
	}
	entry, ok := b.ByVenue[venue][coin]
	return entry.Free, ok
}

// Coins returns every held coin, sorted
func (b *BalanceIndex) Coins() []string {
	if b == nil {
		return nil
	}
	return sortedKeys(b.ByCoin)
}

// Venues returns every venue that reported balances, sorted
func (b *BalanceIndex) Venues() []string {
	if b == nil {
		return nil
	}
	return sortedKeys(b.ByVenue)
}
