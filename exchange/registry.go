package exchange

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/evdnx/golog"
	metrics "github.com/evdnx/gotrademetrics"
	"github.com/evdnx/tradingcp/cache"
	"github.com/evdnx/tradingcp/config"
	"github.com/evdnx/tradingcp/internal/logutil"
	"github.com/evdnx/tradingcp/models"
)

const registryComponent = "venue_registry"

// Registry maps venue ids to configured venues. Lookups of unknown ids fail
// with a ConfigurationError so misconfiguration surfaces before any fetch.
type Registry struct {
	mu       sync.RWMutex
	venues   map[string]Venue
	inactive map[string]bool
	markets  map[string]map[string]models.Market
}

// NewRegistry registers venues. Duplicate ids and non-positive call intervals are rejected.
func NewRegistry(venues ...Venue) (*Registry, error) {
	r := &Registry{
		venues:   make(map[string]Venue, len(venues)),
		inactive: make(map[string]bool),
		markets:  make(map[string]map[string]models.Market),
	}
	for _, v := range venues {
		if err := r.Register(v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a venue
func (r *Registry) Register(v Venue) error {
	if v == nil {
		return NewConfigurationError("nil_venue", "venue is nil")
	}
	id := v.ID()
	if strings.TrimSpace(id) == "" {
		return NewConfigurationError("empty_venue_id", "venue id is empty")
	}
	if v.MinCallInterval() <= 0 {
		return NewConfigurationError("invalid_interval", fmt.Sprintf("venue %s has non-positive minimum call interval", id)).WithVenue(id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.venues[id]; exists {
		return NewConfigurationError("duplicate_venue", fmt.Sprintf("venue %s registered twice", id)).WithVenue(id)
	}
	r.venues[id] = v
	return nil
}

// Deactivate keeps a venue resolvable by id but drops it from default resolution
func (r *Registry) Deactivate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.venues[id]; !ok {
		return unknownVenue(id)
	}
	r.inactive[id] = true
	return nil
}

// Venue returns the venue registered under id
func (r *Registry) Venue(id string) (Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.venues[id]
	if !ok {
		return nil, unknownVenue(id)
	}
	return v, nil
}

// Resolve maps ids to venues. An empty list resolves to every active venue.
// Every id is checked before anything is returned.
func (r *Registry) Resolve(ids []string) ([]Venue, error) {
	if len(ids) == 0 {
		return r.Active(), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Venue, 0, len(ids))
	for _, id := range ids {
		v, ok := r.venues[id]
		if !ok {
			return nil, unknownVenue(id)
		}
		out = append(out, v)
	}
	return out, nil
}

// All returns every venue sorted by id
func (r *Registry) All() []Venue {
	return r.collect(func(string) bool { return true })
}

// Active returns the venues not deactivated, sorted by id
func (r *Registry) Active() []Venue {
	return r.collect(func(id string) bool { return !r.inactive[id] })
}

func (r *Registry) collect(keep func(id string) bool) []Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Venue, 0, len(r.venues))
	for id, v := range r.venues {
		if keep(id) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// IDs returns every registered id sorted
func (r *Registry) IDs() []string {
	venues := r.All()
	ids := make([]string, len(venues))
	for i, v := range venues {
		ids[i] = v.ID()
	}
	return ids
}

// SetMarkets records market metadata loaded for a venue
func (r *Registry) SetMarkets(id string, markets map[string]models.Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets[id] = markets
}

// HasMarkets reports whether market metadata was recorded for a venue
func (r *Registry) HasMarkets(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.markets[id]
	return ok
}

// Market returns metadata for a symbol on a venue
func (r *Registry) Market(id, symbol string) (models.Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id][symbol]
	return m, ok
}

func unknownVenue(id string) *ExchangeError {
	return NewConfigurationError("unknown_venue", fmt.Sprintf("unknown venue id %q", id)).WithVenue(id)
}

// Factory centralizes creation of venues from configuration
type Factory struct {
	http    config.HTTPConfig
	metrics *metrics.Metrics
	candles *cache.CandleCache
	logger  *golog.Logger
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithHTTPConfig sets transport tuning for REST venues
func WithHTTPConfig(cfg config.HTTPConfig) FactoryOption {
	return func(f *Factory) {
		f.http = cfg
	}
}

// WithMetrics reports venue HTTP metrics
func WithMetrics(m *metrics.Metrics) FactoryOption {
	return func(f *Factory) {
		f.metrics = m
	}
}

// WithCandleCache wraps every created venue in a CachedVenue
func WithCandleCache(c *cache.CandleCache) FactoryOption {
	return func(f *Factory) {
		f.candles = c
	}
}

// NewFactory creates a venue factory
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{logger: logutil.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds one venue from its configuration
func (f *Factory) Create(cfg config.VenueConfig) (Venue, error) {
	if cfg.MinCallInterval <= 0 {
		return nil, NewConfigurationError("invalid_interval", fmt.Sprintf("venue %s has non-positive minimum call interval", cfg.ID)).WithVenue(cfg.ID)
	}

	var venue Venue
	switch cfg.Type {
	case config.VenueBinance:
		venue = NewBinanceVenue(cfg.ID, cfg.APIKey, cfg.APISecret, cfg.MinCallInterval,
			WithBinanceTestnet(cfg.Testnet),
			WithBinanceBaseURL(cfg.BaseURL),
			WithBinanceHTTPTimeout(f.http.Timeout),
			WithBinanceMaxRetries(f.http.MaxRetries),
			WithBinanceMetrics(f.metrics),
		)
	case config.VenueMock:
		venue = NewMockVenue(cfg.ID, cfg.MinCallInterval)
	default:
		return nil, NewConfigurationError("unsupported_venue", fmt.Sprintf("unsupported venue type: %s", cfg.Type)).WithVenue(cfg.ID)
	}

	return NewCachedVenue(venue, f.candles), nil
}

// Build creates a registry from venue configurations. Inactive venues are
// registered but excluded from default resolution.
func (f *Factory) Build(cfgs []config.VenueConfig) (*Registry, error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, cfg := range cfgs {
		venue, err := f.Create(cfg)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(venue); err != nil {
			return nil, err
		}
		if cfg.Inactive {
			if err := registry.Deactivate(cfg.ID); err != nil {
				return nil, err
			}
		}
		f.logger.Info("Registered venue",
			golog.String("component", registryComponent),
			golog.String("venue", cfg.ID),
			golog.String("type", string(cfg.Type)),
			golog.String("interval", cfg.MinCallInterval.String()),
		)
	}
	return registry, nil
}
