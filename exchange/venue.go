package exchange

import (
	"context"
	"time"

	"github.com/evdnx/tradingcp/models"
)

// Capability represents an operation a venue may support
type Capability string

const (
	// CapabilityFetchTickers represents bulk ticker retrieval
	CapabilityFetchTickers Capability = "fetchTickers"
	// CapabilityFetchOHLCV represents candle history retrieval
	CapabilityFetchOHLCV Capability = "fetchOHLCV"
	// CapabilityFetchOpenOrders represents open order retrieval
	CapabilityFetchOpenOrders Capability = "fetchOpenOrders"
	// CapabilityCreateOrder represents order placement
	CapabilityCreateOrder Capability = "createOrder"
	// CapabilityCancelOrder represents order cancellation
	CapabilityCancelOrder Capability = "cancelOrder"
)

// AllCapabilities lists every capability in a stable order.
var AllCapabilities = []Capability{
	CapabilityFetchTickers,
	CapabilityFetchOHLCV,
	CapabilityFetchOpenOrders,
	CapabilityCreateOrder,
	CapabilityCancelOrder,
}

// Params carries venue-specific request parameters.
type Params map[string]string

// Venue is a single remote trading venue. Every remote operation may fail with a
// transport or venue-reported error; callers treat that as "no data this cycle".
type Venue interface {
	ID() string
	Name() string
	MinCallInterval() time.Duration
	Capabilities() []Capability
	Has(capability Capability) bool

	// Markets returns symbol metadata keyed by "BASE/QUOTE".
	Markets(ctx context.Context) (map[string]models.Market, error)

	FetchTickers(ctx context.Context) (map[string]models.Ticker, error)
	FetchTicker(ctx context.Context, symbol string) (models.Ticker, error)
	FetchBalance(ctx context.Context) (models.BalanceSheet, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, since time.Time, limit int, params Params) ([]models.Candle, error)
	CreateOrder(ctx context.Context, symbol string, orderType models.OrderType, side models.OrderSide, amount, price float64, params Params) (models.OpenOrder, error)
	CancelOrder(ctx context.Context, orderID, symbol string, params Params) error
}

// capabilitySet implements the capability half of Venue for embedding.
type capabilitySet []Capability

// Capabilities returns a copy of the configured capabilities
func (c capabilitySet) Capabilities() []Capability {
	out := make([]Capability, len(c))
	copy(out, c)
	return out
}

// Has checks if the venue has a specific capability
func (c capabilitySet) Has(capability Capability) bool {
	for _, candidate := range c {
		if candidate == capability {
			return true
		}
	}
	return false
}
