package index

import (
	"sort"

	"github.com/evdnx/tradingcp/models"
)

// MinReportValue hides dust: non-quote rows valued below it are dropped.
const MinReportValue = 0.001

// BalanceRow is one coin valued in the report quote
type BalanceRow struct {
	Coin    string             `json:"coin"`
	Amount  float64            `json:"amount"`
	Value   float64            `json:"value"`
	Share   float64            `json:"share"`
	ByVenue map[string]float64 `json:"byVenue"`
}

// BalanceReport values every held coin in one quote, per venue
type BalanceReport struct {
	Quote       string              `json:"quote"`
	Venues      []string            `json:"venues"`
	Rows        []BalanceRow        `json:"rows"`
	VenueTotals map[string]float64  `json:"venueTotals"`
	Total       float64             `json:"total"`
	QuoteTotal  models.BalanceEntry `json:"quoteTotal"`
}

// ValueBalances values balances in quote using each venue's bid for coin/quote.
// The quote itself counts at face value. Only venues listing quote are counted.
// Rows are ordered quote first, then by value descending, and shares of the
// kept rows sum to 100.
func ValueBalances(prices *PriceIndex, avail *QuoteAvailability, balances *BalanceIndex, quote string) BalanceReport {
	report := BalanceReport{
		Quote:       quote,
		VenueTotals: make(map[string]float64),
	}
	report.QuoteTotal, _ = balances.Total(quote)

	for _, venue := range balances.Venues() {
		if avail.Lists(venue, quote) {
			report.Venues = append(report.Venues, venue)
		}
	}

	for _, coin := range balances.Coins() {
		total, _ := balances.Total(coin)
		if total.Total <= 0 {
			continue
		}

		row := BalanceRow{
			Coin:    coin,
			Amount:  total.Total,
			ByVenue: make(map[string]float64),
		}
		for _, venue := range report.Venues {
			held := balances.ByVenue[venue][coin].Total
			value := held
			if coin != quote {
				bid, _ := prices.Price(Bid, quote, venue, coin)
				value *= bid
			}
			if held > 0 || coin == quote {
				row.ByVenue[venue] = value
			}
			row.Value += value
		}

		if row.Value < MinReportValue && coin != quote {
			continue
		}
		report.Rows = append(report.Rows, row)
	}

	for _, row := range report.Rows {
		report.Total += row.Value
		for venue, value := range row.ByVenue {
			report.VenueTotals[venue] += value
		}
	}
	if report.Total > 0 {
		for i := range report.Rows {
			report.Rows[i].Share = report.Rows[i].Value / report.Total * 100
		}
	}

	sort.SliceStable(report.Rows, func(i, j int) bool {
		a, b := report.Rows[i], report.Rows[j]
		if a.Coin == quote {
			return b.Coin != quote
		}
		if b.Coin == quote {
			return false
		}
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.Coin < b.Coin
	})
	return report
}
