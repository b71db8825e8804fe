package exchange

import (
	"context"
	"time"

	"github.com/evdnx/tradingcp/cache"
	"github.com/evdnx/tradingcp/models"
)

// CachedVenue wraps a Venue so candle history is served from a CandleCache.
// Every other call goes straight to the wrapped venue.
type CachedVenue struct {
	Venue
	candles *cache.CandleCache
}

// NewCachedVenue creates a cached venue. A nil cache returns the venue unwrapped.
func NewCachedVenue(venue Venue, candles *cache.CandleCache) Venue {
	if venue == nil || candles == nil || !candles.IsEnabled() {
		return venue
	}
	return &CachedVenue{Venue: venue, candles: candles}
}

// Unwrap returns the underlying venue
func (c *CachedVenue) Unwrap() Venue {
	return c.Venue
}

// FetchOHLCV fetches candles, using the cache when available
func (c *CachedVenue) FetchOHLCV(ctx context.Context, symbol, timeframe string, since time.Time, limit int, params Params) ([]models.Candle, error) {
	key := c.candles.CacheKey(c.ID(), symbol, timeframe, since, limit)
	if candles, found := c.candles.Get(key); found {
		return candles, nil
	}

	candles, err := c.Venue.FetchOHLCV(ctx, symbol, timeframe, since, limit, params)
	if err != nil {
		return nil, err
	}

	// Empty answers are not cached.
	if len(candles) > 0 {
		c.candles.Set(key, candles)
	}
	return candles, nil
}
