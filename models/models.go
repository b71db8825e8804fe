package models

import "time"

// Candle represents OHLCV candle data.
type Candle struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	OpenTime  time.Time `json:"openTime"`
	CloseTime time.Time `json:"closeTime"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Ticker is a venue's top-of-book snapshot for one pair.
// A zero Bid or Ask means the venue did not report that side.
type Ticker struct {
	Exchange    string    `json:"exchange"`
	Symbol      string    `json:"symbol"`
	Bid         float64   `json:"bid"`
	Ask         float64   `json:"ask"`
	Last        float64   `json:"last"`
	BaseVolume  float64   `json:"baseVolume"`
	QuoteVolume float64   `json:"quoteVolume"`
	Change      float64   `json:"change"`
	Timestamp   time.Time `json:"timestamp"`
}

// BalanceSheet is the raw balance payload of one venue. Amounts stay as the
// strings the venue reported; missing coins are simply absent from a map.
type BalanceSheet struct {
	Free  map[string]string `json:"free"`
	Used  map[string]string `json:"used"`
	Total map[string]string `json:"total"`
}

// NewBalanceSheet returns a sheet with initialized maps.
func NewBalanceSheet() BalanceSheet {
	return BalanceSheet{
		Free:  make(map[string]string),
		Used:  make(map[string]string),
		Total: make(map[string]string),
	}
}

// BalanceEntry is a parsed balance of one coin.
type BalanceEntry struct {
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// OrderSide represents the side of an order (buy or sell)
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// String returns the string representation of OrderSide
func (s OrderSide) String() string {
	return string(s)
}

// OrderType represents the type of an order
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// String returns the string representation of OrderType
func (t OrderType) String() string {
	return string(t)
}

// OpenOrder is an order resting on a venue.
type OpenOrder struct {
	Timestamp time.Time `json:"timestamp"`
	Exchange  string    `json:"exchange"`
	Side      OrderSide `json:"side"`
	Symbol    string    `json:"symbol"`
	ID        string    `json:"id"`
	Type      OrderType `json:"type"`
	Status    string    `json:"status,omitempty"`
	Price     float64   `json:"price"`
	Cost      float64   `json:"cost"`
	Amount    float64   `json:"amount"`
	Filled    float64   `json:"filled"`
}

// Market describes a tradable symbol on a venue.
type Market struct {
	Symbol          string `json:"symbol"`
	Base            string `json:"base"`
	Quote           string `json:"quote"`
	Active          bool   `json:"active"`
	PricePrecision  int    `json:"pricePrecision"`
	AmountPrecision int    `json:"amountPrecision"`
}
