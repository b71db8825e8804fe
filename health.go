package tradingcp

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evdnx/golog"
	"github.com/evdnx/tradingcp/internal/logutil"
)

// VenueStatus represents the observed status of a venue
type VenueStatus string

const (
	// VenueStatusUp indicates recent calls are succeeding
	VenueStatusUp VenueStatus = "UP"
	// VenueStatusDegraded indicates a venue is recovering from DOWN
	VenueStatusDegraded VenueStatus = "DEGRADED"
	// VenueStatusDown indicates too many consecutive failures
	VenueStatusDown VenueStatus = "DOWN"
)

// VenueHealth contains health information about a venue
type VenueHealth struct {
	Status               VenueStatus `json:"status"`
	LastChecked          time.Time   `json:"lastChecked"`
	FailureCount         int         `json:"failureCount"`
	ConsecutiveFails     int         `json:"consecutiveFails"`
	ConsecutiveSuccesses int         `json:"consecutiveSuccesses"`
	LastError            string      `json:"lastError,omitempty"`
}

// HealthConfig contains the status thresholds
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failures before a venue is DOWN
	FailureThreshold int
	// RecoveryThreshold is the number of consecutive successes before a DEGRADED venue is UP
	RecoveryThreshold int
}

// DefaultHealthConfig returns the default thresholds
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold:  3,
		RecoveryThreshold: 2,
	}
}

const healthComponent = "health_tracker"

// HealthTracker records per-venue fetch outcomes. It never stops a venue
// from being fetched; the next reload is the retry.
type HealthTracker struct {
	mu     sync.RWMutex
	venues map[string]*VenueHealth
	config HealthConfig
	logger *golog.Logger
	now    func() time.Time
}

// NewHealthTracker creates a tracker. Non-positive thresholds fall back to defaults.
func NewHealthTracker(config HealthConfig) *HealthTracker {
	defaults := DefaultHealthConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.RecoveryThreshold <= 0 {
		config.RecoveryThreshold = defaults.RecoveryThreshold
	}
	return &HealthTracker{
		venues: make(map[string]*VenueHealth),
		config: config,
		logger: logutil.Default(),
		now:    time.Now,
	}
}

// Register starts tracking a venue as UP
func (h *HealthTracker) Register(venue string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entry(venue)
}

func (h *HealthTracker) entry(venue string) *VenueHealth {
	info, ok := h.venues[venue]
	if !ok {
		info = &VenueHealth{Status: VenueStatusUp}
		h.venues[venue] = info
	}
	return info
}

// RecordFailure records a failed call for a venue
func (h *HealthTracker) RecordFailure(venue string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	info := h.entry(venue)
	info.LastChecked = h.now()
	info.FailureCount++
	info.ConsecutiveFails++
	info.ConsecutiveSuccesses = 0
	if err != nil {
		info.LastError = err.Error()
	}

	if info.ConsecutiveFails >= h.config.FailureThreshold && info.Status != VenueStatusDown {
		info.Status = VenueStatusDown
		h.logger.Warn(
			fmt.Sprintf("Venue %s is now DOWN after %d consecutive failures", venue, info.ConsecutiveFails),
			golog.String("component", healthComponent),
			golog.String("venue", venue),
			golog.String("error", info.LastError),
		)
	}
}

// RecordSuccess records a successful call for a venue
func (h *HealthTracker) RecordSuccess(venue string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	info := h.entry(venue)
	info.LastChecked = h.now()
	info.ConsecutiveFails = 0
	info.ConsecutiveSuccesses++

	switch info.Status {
	case VenueStatusDown:
		info.Status = VenueStatusDegraded
		info.ConsecutiveSuccesses = 1
		h.logger.Info(
			fmt.Sprintf("Venue %s status improved to DEGRADED after successful operation", venue),
			golog.String("component", healthComponent),
			golog.String("venue", venue),
		)
		if h.config.RecoveryThreshold <= 1 {
			h.markUp(venue, info)
		}
	case VenueStatusDegraded:
		if info.ConsecutiveSuccesses >= h.config.RecoveryThreshold {
			h.markUp(venue, info)
		}
	}
}

func (h *HealthTracker) markUp(venue string, info *VenueHealth) {
	info.Status = VenueStatusUp
	info.LastError = ""
	h.logger.Info(
		fmt.Sprintf("Venue %s recovered and is now UP", venue),
		golog.String("component", healthComponent),
		golog.String("venue", venue),
	)
}

// Health returns a copy of a venue's health. Unknown venues report UP.
func (h *HealthTracker) Health(venue string) VenueHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	info, ok := h.venues[venue]
	if !ok {
		return VenueHealth{Status: VenueStatusUp}
	}
	return *info
}

// Statuses returns a copy of every tracked venue's health
func (h *HealthTracker) Statuses() map[string]VenueHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]VenueHealth, len(h.venues))
	for name, info := range h.venues {
		out[name] = *info
	}
	return out
}

// Down returns the venues currently DOWN, sorted
func (h *HealthTracker) Down() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []string
	for name, info := range h.venues {
		if info.Status == VenueStatusDown {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
