// Package api serves read-only JSON views of the aggregator's current
// snapshot, plus a websocket stream of each new one.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/evdnx/golog"
	"github.com/evdnx/tradingcp"
	"github.com/evdnx/tradingcp/exchange"
	"github.com/evdnx/tradingcp/index"
	"github.com/evdnx/tradingcp/internal/logutil"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

const apiComponent = "api"

// SnapshotMessage is broadcast on /stream after every publish
type SnapshotMessage struct {
	Type        string                           `json:"type"`
	Quote       string                           `json:"quote"`
	PublishedAt time.Time                        `json:"publishedAt"`
	CrossStock  []tradingcp.Opportunity          `json:"crossStock"`
	Health      map[string]tradingcp.VenueHealth `json:"health"`
}

// VenueInfo describes one registered venue
type VenueInfo struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Active       bool                  `json:"active"`
	Capabilities []exchange.Capability `json:"capabilities"`
	Health       tradingcp.VenueHealth `json:"health"`
}

// Server routes HTTP requests to the aggregator
type Server struct {
	agg    *tradingcp.Aggregator
	hub    *Hub
	router chi.Router
	logger *golog.Logger
}

// NewServer builds the router and subscribes the stream hub to new snapshots
func NewServer(agg *tradingcp.Aggregator) *Server {
	s := &Server{
		agg:    agg,
		hub:    NewHub(),
		logger: logutil.Default(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", s.health)
	r.Get("/venues", s.venues)
	r.Get("/quotes", s.quotes)
	r.Get("/prices/{quote}", s.prices)
	r.Get("/balances", s.balances)
	r.Route("/arbitrage", func(ar chi.Router) {
		ar.Get("/cross-stock/{quote}", s.crossStock)
		ar.Get("/cross-currency/{a}/{b}", s.crossCurrency)
	})
	r.Get("/orders/{coin}", s.orders)
	r.Post("/reload", s.reload)
	r.Get("/stream", s.hub.ServeHTTP)
	s.router = r

	agg.Subscribe(s.Publish)
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the stream hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Publish broadcasts the cross-stock opportunities of a snapshot
func (s *Server) Publish(snap *tradingcp.Snapshot) {
	quote := s.agg.Quote()
	s.hub.Broadcast(SnapshotMessage{
		Type:        "snapshot",
		Quote:       quote,
		PublishedAt: snap.PublishedAt,
		CrossStock:  s.agg.Analyzer().CrossStock(snap.Prices, quote),
		Health:      snap.Health,
	})
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API listening",
			golog.String("component", apiComponent),
			golog.String("addr", addr),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	snap := s.agg.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"ready":       snap.Ready(),
		"quote":       s.agg.Quote(),
		"publishedAt": snap.PublishedAt,
		"down":        s.agg.Health().Down(),
	})
}

func (s *Server) venues(w http.ResponseWriter, r *http.Request) {
	registry := s.agg.Registry()
	active := make(map[string]bool)
	for _, v := range registry.Active() {
		active[v.ID()] = true
	}

	out := make([]VenueInfo, 0)
	for _, v := range registry.All() {
		out = append(out, VenueInfo{
			ID:           v.ID(),
			Name:         v.Name(),
			Active:       active[v.ID()],
			Capabilities: v.Capabilities(),
			Health:       s.agg.Health().Health(v.ID()),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) quotes(w http.ResponseWriter, r *http.Request) {
	avail := s.agg.Snapshot().Availability
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"selected": s.agg.Quote(),
		"quotes":   avail.Quotes(),
		"venues":   avail.QuoteVenues,
	})
}

func quoteParam(r *http.Request, name string) string {
	return strings.ToUpper(chi.URLParam(r, name))
}

func (s *Server) prices(w http.ResponseWriter, r *http.Request) {
	quote := quoteParam(r, "quote")
	snap := s.agg.Snapshot()
	if !snap.Availability.Has(quote) {
		s.writeError(w, http.StatusNotFound, "unknown quote "+quote)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"quote": quote,
		"bid":   snap.Prices.ByVenue[index.Bid][quote],
		"ask":   snap.Prices.ByVenue[index.Ask][quote],
	})
}

func (s *Server) balances(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.agg.BalanceReport())
}

func (s *Server) crossStock(w http.ResponseWriter, r *http.Request) {
	quote := quoteParam(r, "quote")
	opps := s.agg.Analyzer().CrossStock(s.agg.Snapshot().Prices, quote)
	s.writeJSON(w, http.StatusOK, nonNil(opps))
}

func (s *Server) crossCurrency(w http.ResponseWriter, r *http.Request) {
	a, b := quoteParam(r, "a"), quoteParam(r, "b")
	if a == b {
		s.writeError(w, http.StatusBadRequest, "quotes must differ")
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(s.agg.CrossCurrency(a, b)))
}

func (s *Server) orders(w http.ResponseWriter, r *http.Request) {
	symbol := quoteParam(r, "coin") + "/" + s.agg.Quote()
	orders := s.agg.Snapshot().OpenOrders.Orders(symbol)
	if orders == nil {
		s.writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	if err := s.agg.Reload(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	snap := s.agg.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"publishedAt": snap.PublishedAt,
		"quotes":      snap.Availability.Quotes(),
		"venues":      snap.Balances.Venues(),
	})
}

func nonNil(opps []tradingcp.Opportunity) []tradingcp.Opportunity {
	if opps == nil {
		return []tradingcp.Opportunity{}
	}
	return opps
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to encode response",
			golog.String("component", apiComponent),
			golog.String("error", err.Error()),
		)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
