package exchange

import (
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	metrics "github.com/evdnx/gotrademetrics"
)

// venueMetricsCollector adapts gotrademetrics to gohttpcl's MetricsCollector interface,
// labelling every observation with the venue id.
type venueMetricsCollector struct {
	metrics *metrics.Metrics
	venue   string
}

func newVenueMetricsCollector(m *metrics.Metrics, venue string) *venueMetricsCollector {
	if m == nil {
		return nil
	}
	venue = strings.TrimSpace(venue)
	if venue == "" {
		venue = "venue"
	}
	return &venueMetricsCollector{metrics: m, venue: venue}
}

func (c *venueMetricsCollector) IncRequests(method, target string) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.RecordAPIRequest(c.venue, endpointLabel(method, target))
}

func (c *venueMetricsCollector) IncRetries(method, target string, attempt int) {
	if c == nil || c.metrics == nil {
		return
	}
	if attempt == 1 {
		c.metrics.RecordRetryRequest()
	}
	c.metrics.RecordRetryAttempt()
}

func (c *venueMetricsCollector) IncFailures(method, target string, statusCode int) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.RecordAPIError(c.venue, failureReason(statusCode))
}

func (c *venueMetricsCollector) ObserveLatency(method, target string, duration time.Duration) {
	if c == nil || c.metrics == nil {
		return
	}
	label := endpointLabel(method, target)
	seconds := duration.Seconds()
	c.metrics.RecordAPILatency(c.venue, label, seconds)
	c.metrics.RecordAPIRequestDuration(c.venue, label, seconds)
}

func failureReason(statusCode int) metrics.Reason {
	switch {
	case statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot:
		return metrics.ReasonRateLimit
	case statusCode >= http.StatusInternalServerError:
		return metrics.ReasonInternal
	case statusCode <= 0:
		return metrics.ReasonNetworkError
	default:
		return metrics.ReasonAPIError
	}
}

// endpointLabel drops the query string: signed requests carry a timestamp and
// signature that would otherwise explode label cardinality.
func endpointLabel(method, rawTarget string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	path := rawTarget
	if u, err := neturl.Parse(rawTarget); err == nil {
		path = u.EscapedPath()
		if path == "" {
			path = "/"
		}
	}
	if method == "" {
		return path
	}
	return method + " " + path
}
