package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/evdnx/tradingcp/exchange"
	"github.com/evdnx/tradingcp/models"
	"github.com/evdnx/tradingcp/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu        sync.Mutex
	successes []string
	failures  map[string]error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{failures: make(map[string]error)}
}

func (o *recordingObserver) RecordSuccess(venue string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.successes = append(o.successes, venue)
}

func (o *recordingObserver) RecordFailure(venue string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[venue] = err
}

func venues(vs ...*exchange.MockVenue) []exchange.Venue {
	out := make([]exchange.Venue, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func TestTickersOmitsFailedVenue(t *testing.T) {
	a := exchange.NewMockVenue("a", time.Millisecond).SetTicker("ETH/BTC", 0.05, 0.051)
	b := exchange.NewMockVenue("b", time.Millisecond).SetTicker("ETH/BTC", 0.049, 0.05)
	c := exchange.NewMockVenue("c", time.Millisecond).
		FailWith("fetchTickers", exchange.NewNetworkError("timeout", "request timed out", nil, true))

	obs := newRecordingObserver()
	f := New(ratelimit.New(nil), WithObserver(obs))

	got := f.Tickers(context.Background(), venues(a, b, c))

	require.Len(t, got, 2)
	assert.Contains(t, got, "a")
	assert.Contains(t, got, "b")
	assert.NotContains(t, got, "c")
	assert.Equal(t, 0.05, got["a"]["ETH/BTC"].Bid)

	assert.ElementsMatch(t, []string{"a", "b"}, obs.successes)
	require.Contains(t, obs.failures, "c")
	assert.True(t, exchange.IsNetworkError(obs.failures["c"]))
}

func TestAllVenuesFailing(t *testing.T) {
	boom := errors.New("boom")
	a := exchange.NewMockVenue("a", time.Millisecond).FailWith("fetchBalance", boom)
	b := exchange.NewMockVenue("b", time.Millisecond).FailWith("fetchBalance", boom)

	got := New(ratelimit.New(nil)).Balances(context.Background(), venues(a, b))
	assert.Empty(t, got)
}

func TestSkipsVenuesWithoutCapability(t *testing.T) {
	a := exchange.NewMockVenue("a", time.Millisecond)
	b := exchange.NewMockVenue("b", time.Millisecond)
	b.SetCapabilities(exchange.CapabilityFetchTickers)

	got := New(ratelimit.New(nil)).OHLCV(context.Background(), venues(a, b), OHLCVRequest{
		Symbol: "ETH/BTC", Timeframe: "1h", Since: time.Now().Add(-time.Hour), Limit: 3,
	})

	require.Contains(t, got, "a")
	assert.Len(t, got["a"], 3)
	assert.NotContains(t, got, "b")
	assert.Zero(t, b.Calls("fetchOHLCV"))
}

func TestVenuesRunConcurrently(t *testing.T) {
	delay := 100 * time.Millisecond
	vs := make([]*exchange.MockVenue, 4)
	for i := range vs {
		vs[i] = exchange.NewMockVenue(string(rune('a'+i)), time.Millisecond).SetDelay(delay)
	}

	start := time.Now()
	got := New(ratelimit.New(nil)).Balances(context.Background(), venues(vs...))
	elapsed := time.Since(start)

	assert.Len(t, got, 4)
	assert.Less(t, elapsed, 3*delay)
}

func TestSlowVenueDoesNotLoseOthers(t *testing.T) {
	slow := exchange.NewMockVenue("slow", time.Millisecond).SetDelay(time.Hour)
	fast := exchange.NewMockVenue("fast", time.Millisecond).SetTicker("ETH/BTC", 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	obs := newRecordingObserver()
	got := New(ratelimit.New(nil), WithObserver(obs)).Tickers(ctx, venues(slow, fast))

	assert.Contains(t, got, "fast")
	assert.NotContains(t, got, "slow")
	// the deadline, not the venue, ended the call
	assert.NotContains(t, obs.failures, "slow")
	assert.Equal(t, []string{"fast"}, obs.successes)
}

func TestCancelledBatchIsNotReportedAsFailure(t *testing.T) {
	a := exchange.NewMockVenue("a", time.Millisecond)
	b := exchange.NewMockVenue("b", time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	obs := newRecordingObserver()
	got := New(ratelimit.New(nil), WithObserver(obs)).Balances(ctx, venues(a, b))

	assert.Empty(t, got)
	assert.Empty(t, obs.failures)
	assert.Empty(t, obs.successes)
}

func TestPanickingVenueIsIsolated(t *testing.T) {
	a := exchange.NewMockVenue("a", time.Millisecond)
	b := exchange.NewMockVenue("b", time.Millisecond)

	obs := newRecordingObserver()
	f := New(ratelimit.New(nil), WithObserver(obs))
	got := FetchAll(context.Background(), f, KindBalances, venues(a, b),
		func(ctx context.Context, v exchange.Venue) (int, error) {
			if v.ID() == "a" {
				panic("adapter bug")
			}
			return 1, nil
		})

	assert.Equal(t, map[string]int{"b": 1}, got)
	require.Contains(t, obs.failures, "a")
	assert.Contains(t, obs.failures["a"].Error(), "adapter bug")
	assert.Equal(t, []string{"b"}, obs.successes)
}

func TestCallsAreRecordedWithLimiter(t *testing.T) {
	limiter := ratelimit.New(map[string]time.Duration{"a": time.Minute})
	a := exchange.NewMockVenue("a", time.Minute)

	New(limiter).Markets(context.Background(), venues(a))

	_, called := limiter.LastCall("a")
	assert.True(t, called)
	assert.Greater(t, limiter.WaitTime("a", time.Now()), 50*time.Second)
}

func TestOpenOrdersBySymbol(t *testing.T) {
	a := exchange.NewMockVenue("a", time.Millisecond)
	a.AddOrder(exchangeOrder("1", "ETH/BTC"))
	a.AddOrder(exchangeOrder("2", "LTC/BTC"))

	got := New(ratelimit.New(nil)).OpenOrders(context.Background(), venues(a), "ETH/BTC")
	require.Len(t, got["a"], 1)
	assert.Equal(t, "1", got["a"][0].ID)
}

func exchangeOrder(id, symbol string) models.OpenOrder {
	return models.OpenOrder{ID: id, Symbol: symbol, Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Price: 1, Amount: 1}
}
