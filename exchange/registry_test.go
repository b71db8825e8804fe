package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/evdnx/tradingcp/cache"
	"github.com/evdnx/tradingcp/config"
	"github.com/evdnx/tradingcp/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryUnknownVenueIsConfigurationError(t *testing.T) {
	r, err := NewRegistry(NewMockVenue("a", time.Second))
	require.NoError(t, err)

	_, err = r.Venue("nope")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	_, err = r.Resolve([]string{"a", "nope"})
	assert.True(t, IsConfigurationError(err))
}

func TestRegistryRejectsBadVenues(t *testing.T) {
	_, err := NewRegistry(NewMockVenue("a", time.Second), NewMockVenue("a", time.Second))
	assert.True(t, IsConfigurationError(err))

	_, err = NewRegistry(NewMockVenue("a", 0))
	assert.True(t, IsConfigurationError(err))

	_, err = NewRegistry(NewMockVenue("", time.Second))
	assert.True(t, IsConfigurationError(err))
}

func TestRegistryResolveDefaultsToActiveSorted(t *testing.T) {
	r, err := NewRegistry(
		NewMockVenue("c", time.Second),
		NewMockVenue("a", time.Second),
		NewMockVenue("b", time.Second),
	)
	require.NoError(t, err)
	require.NoError(t, r.Deactivate("b"))

	venues, err := r.Resolve(nil)
	require.NoError(t, err)
	require.Len(t, venues, 2)
	assert.Equal(t, "a", venues[0].ID())
	assert.Equal(t, "c", venues[1].ID())

	assert.Equal(t, []string{"a", "b", "c"}, r.IDs())

	explicit, err := r.Resolve([]string{"b"})
	require.NoError(t, err)
	assert.Equal(t, "b", explicit[0].ID())

	assert.True(t, IsConfigurationError(r.Deactivate("zzz")))
}

func TestRegistryMarkets(t *testing.T) {
	r, err := NewRegistry(NewMockVenue("a", time.Second))
	require.NoError(t, err)

	assert.False(t, r.HasMarkets("a"))
	r.SetMarkets("a", map[string]models.Market{"ETH/BTC": {Symbol: "ETH/BTC", Active: true}})
	assert.True(t, r.HasMarkets("a"))
	m, ok := r.Market("a", "ETH/BTC")
	assert.True(t, ok)
	assert.True(t, m.Active)

	_, ok = r.Market("a", "LTC/BTC")
	assert.False(t, ok)
	_, ok = r.Market("b", "ETH/BTC")
	assert.False(t, ok)
}

func TestFactoryBuild(t *testing.T) {
	f := NewFactory(WithHTTPConfig(config.HTTPConfig{Timeout: time.Second}))
	r, err := f.Build([]config.VenueConfig{
		{ID: "binance", Type: config.VenueBinance, MinCallInterval: time.Second, BaseURL: "http://localhost:1"},
		{ID: "paper", Type: config.VenueMock, MinCallInterval: 100 * time.Millisecond, Inactive: true},
	})
	require.NoError(t, err)

	v, err := r.Venue("binance")
	require.NoError(t, err)
	assert.IsType(t, &BinanceVenue{}, v)
	assert.Equal(t, time.Second, v.MinCallInterval())

	active, err := r.Resolve(nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "binance", active[0].ID())
}

func TestFactoryRejectsUnsupportedType(t *testing.T) {
	_, err := NewFactory().Create(config.VenueConfig{ID: "k", Type: "kraken", MinCallInterval: time.Second})
	assert.True(t, IsConfigurationError(err))

	_, err = NewFactory().Create(config.VenueConfig{ID: "m", Type: config.VenueMock})
	assert.True(t, IsConfigurationError(err))
}

func TestFactoryWrapsWithCandleCache(t *testing.T) {
	cc := cache.NewCandleCache(cache.DefaultConfig())
	defer cc.Stop()

	v, err := NewFactory(WithCandleCache(cc)).Create(config.VenueConfig{ID: "m", Type: config.VenueMock, MinCallInterval: time.Second})
	require.NoError(t, err)
	cached, ok := v.(*CachedVenue)
	require.True(t, ok)
	assert.IsType(t, &MockVenue{}, cached.Unwrap())
}

func TestCachedVenueServesRepeatCandlesFromCache(t *testing.T) {
	cc := cache.NewCandleCache(cache.DefaultConfig())
	defer cc.Stop()

	mock := NewMockVenue("m", time.Second)
	v := NewCachedVenue(mock, cc)
	since := time.Unix(1_700_000_000, 0)

	first, err := v.FetchOHLCV(context.Background(), "ETH/BTC", "1h", since, 5, nil)
	require.NoError(t, err)
	second, err := v.FetchOHLCV(context.Background(), "ETH/BTC", "1h", since.Add(time.Second), 5, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), mock.Calls("fetchOHLCV"))

	_, err = v.FetchTickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), mock.Calls("fetchTickers"))
}

func TestCachedVenueDoesNotCacheErrors(t *testing.T) {
	cc := cache.NewCandleCache(cache.DefaultConfig())
	defer cc.Stop()

	mock := NewMockVenue("m", time.Second)
	mock.FailWith("fetchOHLCV", NewNetworkError("down", "down", nil, true))
	v := NewCachedVenue(mock, cc)

	_, err := v.FetchOHLCV(context.Background(), "ETH/BTC", "1h", time.Now(), 5, nil)
	require.Error(t, err)

	mock.FailWith("fetchOHLCV", nil)
	candles, err := v.FetchOHLCV(context.Background(), "ETH/BTC", "1h", time.Now(), 5, nil)
	require.NoError(t, err)
	assert.Len(t, candles, 5)
}
