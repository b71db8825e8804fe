package cache

import (
	"fmt"
	"time"

	"github.com/evdnx/tradingcp/models"
	"github.com/evdnx/tradingcp/timeframe"
)

// CandleCache is a specialized cache for OHLCV history
type CandleCache struct {
	cache  *Cache
	config Config
}

// NewCandleCache creates a candle cache with the given configuration
func NewCandleCache(config Config) *CandleCache {
	return &CandleCache{
		cache:  New(config),
		config: config,
	}
}

// CacheKey builds venue:symbol:timeframe:bucket:limit. The since time is
// truncated to the timeframe so requests within the same candle share a key.
func (m *CandleCache) CacheKey(venue, symbol, tf string, since time.Time, limit int) string {
	bucket := since.Unix()
	if seconds := timeframe.Seconds(tf); seconds > 0 {
		bucket -= bucket % seconds
	}
	return fmt.Sprintf("%s:%s:%s:%d:%d", venue, symbol, tf, bucket, limit)
}

// Set stores candles under the historical TTL
func (m *CandleCache) Set(key string, candles []models.Candle) {
	if !m.config.Enabled {
		return
	}
	stored := make([]models.Candle, len(candles))
	copy(stored, candles)
	m.cache.Set(key, stored, m.config.HistoricalDataTTL)
}

// Get returns a copy of cached candles
func (m *CandleCache) Get(key string) ([]models.Candle, bool) {
	if !m.config.Enabled {
		return nil, false
	}
	value, found := m.cache.Get(key)
	if !found {
		return nil, false
	}
	candles, ok := value.([]models.Candle)
	if !ok {
		return nil, false
	}
	out := make([]models.Candle, len(candles))
	copy(out, candles)
	return out, true
}

// Clear clears all cached candles
func (m *CandleCache) Clear() {
	m.cache.Clear()
}

// Stop stops the cache's background processes
func (m *CandleCache) Stop() {
	m.cache.Stop()
}

// IsEnabled returns whether caching is enabled
func (m *CandleCache) IsEnabled() bool {
	return m.config.Enabled
}
