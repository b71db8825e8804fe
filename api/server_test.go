package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/evdnx/tradingcp"
	"github.com/evdnx/tradingcp/exchange"
	"github.com/evdnx/tradingcp/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	a := exchange.NewMockVenue("a", time.Millisecond)
	a.SetTicker("ETH/BTC", 0.05, 0.051)
	a.SetTicker("BTC/USDT", 30000, 30010)
	a.SetBalance("BTC", "1", "0", "1")
	a.AddOrder(models.OpenOrder{ID: "1", Symbol: "ETH/BTC"})

	b := exchange.NewMockVenue("b", time.Millisecond)
	b.SetTicker("ETH/BTC", 0.056, 0.057)

	registry, err := exchange.NewRegistry(a, b)
	require.NoError(t, err)
	agg, err := tradingcp.NewAggregator(registry)
	require.NoError(t, err)

	srv := NewServer(agg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, into interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	return resp.StatusCode
}

func reload(t *testing.T, ts *httptest.Server) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/reload", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthBeforeReload(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["ready"])
}

func TestVenues(t *testing.T) {
	_, ts := newTestServer(t)

	var venues []VenueInfo
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/venues", &venues))
	require.Len(t, venues, 2)
	assert.Equal(t, "a", venues[0].ID)
	assert.True(t, venues[0].Active)
	assert.Len(t, venues[0].Capabilities, len(exchange.AllCapabilities))
	assert.Equal(t, tradingcp.VenueStatusUp, venues[0].Health.Status)
}

func TestPricesAndQuotes(t *testing.T) {
	_, ts := newTestServer(t)

	var missing map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/prices/btc", &missing))

	reload(t, ts)

	var quotes struct {
		Selected string   `json:"selected"`
		Quotes   []string `json:"quotes"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/quotes", &quotes))
	assert.Equal(t, "BTC", quotes.Selected)
	assert.Equal(t, []string{"BTC", "USDT"}, quotes.Quotes)

	var prices struct {
		Quote string                        `json:"quote"`
		Bid   map[string]map[string]float64 `json:"bid"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/prices/btc", &prices))
	assert.Equal(t, "BTC", prices.Quote)
	assert.Equal(t, 0.056, prices.Bid["b"]["ETH"])
}

func TestArbitrageRoutes(t *testing.T) {
	_, ts := newTestServer(t)
	reload(t, ts)

	var opps []tradingcp.Opportunity
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/arbitrage/cross-stock/BTC", &opps))
	require.Len(t, opps, 1)
	assert.Equal(t, "ETH", opps[0].Coin)

	opps = nil
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/arbitrage/cross-currency/BTC/USDT", &opps))
	assert.Empty(t, opps)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/arbitrage/cross-currency/btc/BTC", &errBody))
	assert.NotEmpty(t, errBody["error"])
}

func TestBalancesAndOrders(t *testing.T) {
	srv, ts := newTestServer(t)
	reload(t, ts)

	var report tradingcp.BalanceReport
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/balances", &report))
	assert.Equal(t, "BTC", report.Quote)
	require.NotEmpty(t, report.Rows)

	var orders []models.OpenOrder
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/orders/eth", &orders))
	assert.Empty(t, orders, "orders are only served once loaded")

	_, err := srv.agg.LoadOpenOrders(context.Background(), "ETH")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/orders/eth", &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "1", orders[0].ID)
}

func TestStreamReceivesSnapshotAfterReload(t *testing.T) {
	srv, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.Hub().Count() == 1 }, time.Second, 10*time.Millisecond)

	reload(t, ts)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg SnapshotMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, "BTC", msg.Quote)
	require.Len(t, msg.CrossStock, 1)
	assert.Contains(t, msg.Health, "a")
}
