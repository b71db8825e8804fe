package order

import (
	"context"
	"errors"
	"testing"

	"github.com/evdnx/tradingcp/exchange"
	"github.com/evdnx/tradingcp/index"
	"github.com/evdnx/tradingcp/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMarkets map[string]models.Market

func (s stubMarkets) Market(venue, symbol string) (models.Market, bool) {
	m, ok := s[venue+":"+symbol]
	return m, ok
}

type stubExecutor struct {
	tickets []Ticket
	order   models.OpenOrder
	err     error
}

func (s *stubExecutor) Execute(_ context.Context, venue string, ticket Ticket) (models.OpenOrder, error) {
	s.tickets = append(s.tickets, ticket)
	if s.err != nil {
		return models.OpenOrder{}, s.err
	}
	order := s.order
	order.Exchange = venue
	return order, nil
}

func fixture(side models.OrderSide, exec Executor) Config {
	prices, _ := index.BuildPriceIndex(map[string]map[string]models.Ticker{
		"a": {"ETH/BTC": {Bid: 0.05, Ask: 0.051}},
		"b": {"ETH/BTC": {Bid: 0.049, Ask: 0.0495}},
	})
	balances := index.BuildBalanceIndex(map[string]models.BalanceSheet{
		"a": {
			Free:  map[string]string{"BTC": "1", "ETH": "2"},
			Total: map[string]string{"BTC": "1", "ETH": "2"},
		},
		"b": {
			Free:  map[string]string{"BTC": "0.5", "ETH": "0.00000005"},
			Total: map[string]string{"BTC": "0.5", "ETH": "0.00000005"},
		},
	})
	return Config{
		Side:     side,
		Coin:     "ETH",
		Quote:    "BTC",
		Prices:   prices,
		Balances: balances,
		Markets: stubMarkets{
			"a:ETH/BTC": {Symbol: "ETH/BTC", Base: "ETH", Quote: "BTC", Active: true, PricePrecision: 6, AmountPrecision: 3},
		},
		Executor: exec,
	}
}

func TestBuyLimitFlow(t *testing.T) {
	exec := &stubExecutor{order: models.OpenOrder{ID: "x1"}}
	w, err := NewWizard(fixture(models.OrderSideBuy, exec))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, w.Candidates())
	assert.Equal(t, StateSelectVenue, w.State())

	assert.ErrorIs(t, w.SelectType(models.OrderTypeLimit), ErrInvalidTransition)

	err = w.SelectVenue("c")
	assert.True(t, exchange.IsValidationError(err))
	err = w.SelectVenue("b")
	assert.True(t, exchange.IsValidationError(err), "b has no market metadata")
	assert.Equal(t, StateSelectVenue, w.State())

	require.NoError(t, w.SelectVenue("a"))
	assert.Equal(t, 0.051, w.Reference())
	assert.Equal(t, 1.0, w.Free())

	require.NoError(t, w.SelectType(models.OrderTypeLimit))
	require.NoError(t, w.EnterPrice("98%"))
	require.NoError(t, w.EnterAmount("50%"))
	require.Equal(t, StateConfirm, w.State())

	ticket, ok := w.Ticket()
	require.True(t, ok)
	assert.Equal(t, "ETH/BTC", ticket.Symbol)
	assert.Equal(t, models.OrderTypeLimit, ticket.Type)
	assert.Equal(t, "0.04998", ticket.Price.String())
	assert.Equal(t, "0.5", ticket.Spend.String())
	assert.Equal(t, "10.004", ticket.Amount.String())

	order, err := w.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x1", order.ID)
	assert.Equal(t, "a", order.Exchange)
	assert.Equal(t, StatePlaced, w.State())
	require.Len(t, exec.tickets, 1)

	assert.ErrorIs(t, w.Abort(), ErrInvalidTransition)
	_, err = w.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.Len(t, exec.tickets, 1)
}

func TestSellMarketFlowFails(t *testing.T) {
	exec := &stubExecutor{err: exchange.NewNetworkError("timeout", "venue timed out", nil, true)}
	w, err := NewWizard(fixture(models.OrderSideSell, exec))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, w.Candidates(), "dust balance on b is not a candidate")

	require.NoError(t, w.SelectVenue("a"))
	assert.Equal(t, 0.05, w.Reference())
	require.NoError(t, w.SelectType(models.OrderTypeMarket))
	assert.Equal(t, StateEnterAmount, w.State())
	assert.ErrorIs(t, w.EnterPrice("1"), ErrInvalidTransition)

	assert.True(t, exchange.IsValidationError(w.EnterAmount("3")))
	assert.True(t, exchange.IsValidationError(w.EnterAmount("0.0001")))
	assert.Equal(t, StateEnterAmount, w.State())

	require.NoError(t, w.EnterAmount("1.2345"))
	ticket, ok := w.Ticket()
	require.True(t, ok)
	assert.Equal(t, models.OrderSideSell, ticket.Side)
	assert.Equal(t, "0.05", ticket.Price.String())
	assert.Equal(t, "1.235", ticket.Amount.String())
	assert.Equal(t, "0.062", ticket.Proceeds.String())

	_, err = w.Confirm(context.Background())
	require.Error(t, err)
	assert.True(t, exchange.IsNetworkError(err))
	assert.Equal(t, StateFailed, w.State())

	_, resultErr := w.Result()
	assert.Same(t, err, resultErr)
	assert.ErrorIs(t, w.EnterAmount("1"), ErrInvalidTransition)
}

func TestAbort(t *testing.T) {
	w, err := NewWizard(fixture(models.OrderSideBuy, &stubExecutor{}))
	require.NoError(t, err)
	require.NoError(t, w.SelectVenue("a"))
	require.NoError(t, w.SelectType(models.OrderTypeLimit))

	require.NoError(t, w.Abort())
	assert.Equal(t, StateAborted, w.State())
	assert.True(t, w.State().Terminal())
	assert.ErrorIs(t, w.EnterPrice(""), ErrInvalidTransition)
	assert.ErrorIs(t, w.Abort(), ErrInvalidTransition)

	_, ok := w.Ticket()
	assert.False(t, ok)
}

func TestNewWizardRejects(t *testing.T) {
	cfg := fixture(models.OrderSideBuy, &stubExecutor{})
	cfg.Coin = "XRP"
	_, err := NewWizard(cfg)
	assert.True(t, exchange.IsValidationError(err))

	cfg = fixture(models.OrderSide("hold"), &stubExecutor{})
	_, err = NewWizard(cfg)
	assert.True(t, exchange.IsValidationError(err))

	cfg = fixture(models.OrderSideBuy, nil)
	_, err = NewWizard(cfg)
	assert.Error(t, err)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{"empty uses reference", "", 0.051, false},
		{"absolute", "0.05", 0.05, false},
		{"percent of reference", "200%", 0.102, false},
		{"garbage", "abc", 0, true},
		{"too small", "0.000000001", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.input, 0.051)
			if tt.wantErr {
				assert.True(t, exchange.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("10%", 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, got, 1e-12)

	got, err = ParseAmount("2", 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	_, err = ParseAmount("2.5", 2)
	assert.True(t, exchange.IsValidationError(err))
	_, err = ParseAmount("0.0009", 2)
	assert.True(t, exchange.IsValidationError(err))
	_, err = ParseAmount("", 2)
	assert.True(t, exchange.IsValidationError(err))
}

func TestRound(t *testing.T) {
	assert.Equal(t, "0.12346", Round(0.123456, 5).String())
	assert.Equal(t, "2", Round(1.5, 0).String())
	assert.Equal(t, "1.2", Round(1.2, 8).String())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "enter_amount", StateEnterAmount.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.False(t, StateExecuting.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, errors.Is(ErrInvalidTransition, ErrInvalidTransition))
}
