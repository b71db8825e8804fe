package cache

import (
	"time"
)

// Config represents cache configuration settings
type Config struct {
	// Enabled determines if caching is enabled
	Enabled bool

	// HistoricalDataTTL is the time-to-live for candle history
	HistoricalDataTTL time.Duration

	// MaxCacheSize is the maximum number of items in the cache (0 = unlimited)
	MaxCacheSize int

	// CleanupInterval is the interval at which expired items are cleaned up
	CleanupInterval time.Duration
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		HistoricalDataTTL: time.Hour,
		MaxCacheSize:      1000,
		CleanupInterval:   time.Minute,
	}
}
