package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/evdnx/golog"
	"github.com/evdnx/tradingcp/internal/logutil"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const configComponent = "config"

// VenueType names a supported venue adapter
type VenueType string

const (
	// VenueBinance is the Binance spot REST adapter
	VenueBinance VenueType = "binance"
	// VenueMock is the in-memory venue
	VenueMock VenueType = "mock"
)

// ConfigManager handles configuration loading, validation, and hot reloading
type ConfigManager struct {
	viper       *viper.Viper
	config      *Config
	configLock  sync.RWMutex
	validate    *validator.Validate
	configPath  string
	watchOnce   sync.Once
	onChange    []func(config *Config)
}

// Config represents the application configuration with validation
type Config struct {
	LogLevel string         `mapstructure:"logLevel" validate:"required,oneof=debug info warn warning error fatal"`
	Quote    string         `mapstructure:"quote" validate:"required,alphanum"`
	Currency string         `mapstructure:"currency" validate:"omitempty,alphanum"`
	Venues   []VenueConfig  `mapstructure:"venues" validate:"unique=ID,dive"`
	Analysis AnalysisConfig `mapstructure:"analysis" validate:"required"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Cache    CacheConfig    `mapstructure:"cache"`
	API      APIConfig      `mapstructure:"api"`
	Health   HealthConfig   `mapstructure:"health"`
}

// VenueConfig represents venue-specific configuration with validation
type VenueConfig struct {
	ID              string        `mapstructure:"id" validate:"required"`
	Type            VenueType     `mapstructure:"type" validate:"required,oneof=binance mock"`
	APIKey          string        `mapstructure:"apiKey"`
	APISecret       string        `mapstructure:"apiSecret"`
	Testnet         bool          `mapstructure:"testnet"`
	Inactive        bool          `mapstructure:"inactive"`
	MinCallInterval time.Duration `mapstructure:"minCallInterval" validate:"gt=0"`
	BaseURL         string        `mapstructure:"baseURL" validate:"omitempty,url"`
}

// AnalysisConfig holds arbitrage thresholds and the default cross-currency pair
type AnalysisConfig struct {
	CrossStockThreshold    float64 `mapstructure:"crossStockThreshold" validate:"gt=1"`
	CrossCurrencyThreshold float64 `mapstructure:"crossCurrencyThreshold" validate:"gte=0"`
	QuoteA                 string  `mapstructure:"quoteA" validate:"required,alphanum"`
	QuoteB                 string  `mapstructure:"quoteB" validate:"required,alphanum,nefield=QuoteA"`
}

// HTTPConfig tunes venue transports
type HTTPConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries int           `mapstructure:"maxRetries" validate:"gte=0,lte=10"`
}

// CacheConfig configures the candle cache
type CacheConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	HistoricalDataTTL time.Duration `mapstructure:"historicalDataTTL" validate:"required_if=Enabled true"`
	MaxSize           int           `mapstructure:"maxSize" validate:"gte=0"`
	CleanupInterval   time.Duration `mapstructure:"cleanupInterval"`
}

// APIConfig represents snapshot API server configuration with validation
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// HealthConfig sets venue health transitions
type HealthConfig struct {
	FailureThreshold  int `mapstructure:"failureThreshold" validate:"gte=1"`
	RecoveryThreshold int `mapstructure:"recoveryThreshold" validate:"gte=1"`
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(configPath string, watchConfig bool) (*ConfigManager, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TRADINGCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	loadDefaultConfig(v)

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}

		v.SetConfigFile(absPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load configuration file: %w", err)
		}
	}

	cm := &ConfigManager{
		viper:      v,
		validate:   validator.New(),
		configPath: configPath,
		onChange:   make([]func(config *Config), 0),
	}

	if err := cm.loadConfig(); err != nil {
		return nil, err
	}

	if watchConfig {
		cm.Watch()
	}

	return cm, nil
}

// Watch reloads the configuration file when it changes and runs the change
// callbacks. It does nothing without a file and only starts once.
func (cm *ConfigManager) Watch() {
	if cm.configPath == "" {
		return
	}
	cm.watchOnce.Do(func() {
		cm.viper.WatchConfig()
		cm.viper.OnConfigChange(func(e fsnotify.Event) {
			logger := logutil.Default()
			if err := cm.loadConfig(); err != nil {
				logger.Error("Error reloading configuration",
					golog.String("component", configComponent),
					golog.String("file", e.Name),
					golog.String("error", err.Error()),
				)
				return
			}
			logger.Info("Configuration reloaded",
				golog.String("component", configComponent),
				golog.String("file", e.Name),
			)

			cm.configLock.RLock()
			cfg := cm.config
			callbacks := append([]func(*Config){}, cm.onChange...)
			cm.configLock.RUnlock()
			for _, callback := range callbacks {
				callback(cfg)
			}
		})
	})
}

// loadDefaultConfig sets default configuration values
func loadDefaultConfig(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("quote", "BTC")
	v.SetDefault("currency", "")
	v.SetDefault("venues", []map[string]interface{}{})
	v.SetDefault("analysis.crossStockThreshold", 1.05)
	v.SetDefault("analysis.crossCurrencyThreshold", 0.001)
	v.SetDefault("analysis.quoteA", "BTC")
	v.SetDefault("analysis.quoteB", "ETH")
	v.SetDefault("http.timeout", "10s")
	v.SetDefault("http.maxRetries", 0)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.historicalDataTTL", "1h")
	v.SetDefault("cache.maxSize", 1000)
	v.SetDefault("cache.cleanupInterval", "1m")
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("health.failureThreshold", 3)
	v.SetDefault("health.recoveryThreshold", 2)
}

// loadConfig decodes and validates the configuration, then swaps it in
func (cm *ConfigManager) loadConfig() error {
	cfg, err := Decode(cm.viper.AllSettings(), cm.validate)
	if err != nil {
		return err
	}

	cm.configLock.Lock()
	cm.config = cfg
	cm.configLock.Unlock()
	return nil
}

// Decode turns raw settings into a validated Config. Unknown keys are rejected.
func Decode(settings map[string]interface{}, validate *validator.Validate) (*Config, error) {
	var rawConfig Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result:           &rawConfig,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if validate == nil {
		validate = validator.New()
	}
	if err := validate.Struct(rawConfig); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	rawConfig.Quote = strings.ToUpper(rawConfig.Quote)
	rawConfig.Currency = strings.ToUpper(rawConfig.Currency)
	rawConfig.Analysis.QuoteA = strings.ToUpper(rawConfig.Analysis.QuoteA)
	rawConfig.Analysis.QuoteB = strings.ToUpper(rawConfig.Analysis.QuoteB)

	return &rawConfig, nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.configLock.RLock()
	defer cm.configLock.RUnlock()
	return cm.config
}

// GetViper returns the Viper instance
func (cm *ConfigManager) GetViper() *viper.Viper {
	return cm.viper
}

// RegisterOnChangeCallback registers a callback function to be called when the configuration changes
func (cm *ConfigManager) RegisterOnChangeCallback(callback func(config *Config)) {
	cm.configLock.Lock()
	defer cm.configLock.Unlock()
	cm.onChange = append(cm.onChange, callback)
}

// ActiveVenues returns the venues not marked inactive
func (c *Config) ActiveVenues() []VenueConfig {
	out := make([]VenueConfig, 0, len(c.Venues))
	for _, v := range c.Venues {
		if !v.Inactive {
			out = append(out, v)
		}
	}
	return out
}
