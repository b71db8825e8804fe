// Package order walks a buy or sell order from venue selection to placement.
// The wizard is driven by explicit inputs; it never reads from a terminal.
package order

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/evdnx/golog"
	"github.com/evdnx/tradingcp/exchange"
	"github.com/evdnx/tradingcp/index"
	"github.com/evdnx/tradingcp/internal/logutil"
	"github.com/evdnx/tradingcp/models"
	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is returned for an input the current state does not accept
var ErrInvalidTransition = errors.New("invalid wizard state transition")

// State is a step of the wizard
type State int

const (
	StateSelectVenue State = iota
	StateSelectType
	StateEnterPrice
	StateEnterAmount
	StateConfirm
	StateExecuting
	StatePlaced
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateSelectVenue:
		return "select_venue"
	case StateSelectType:
		return "select_type"
	case StateEnterPrice:
		return "enter_price"
	case StateEnterAmount:
		return "enter_amount"
	case StateConfirm:
		return "confirm"
	case StateExecuting:
		return "executing"
	case StatePlaced:
		return "placed"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further input is accepted
func (s State) Terminal() bool {
	switch s {
	case StatePlaced, StateFailed, StateAborted:
		return true
	default:
		return false
	}
}

// Ticket is a fully resolved order ready for placement
type Ticket struct {
	Venue     string           `json:"venue"`
	Symbol    string           `json:"symbol"`
	Coin      string           `json:"coin"`
	Quote     string           `json:"quote"`
	Side      models.OrderSide `json:"side"`
	Type      models.OrderType `json:"type"`
	Reference float64          `json:"reference"`
	// Price is rounded to the market's price precision
	Price decimal.Decimal `json:"price"`
	// Amount is the coin quantity sent to the venue
	Amount decimal.Decimal `json:"amount"`
	// Spend is quote for a buy and coin for a sell
	Spend decimal.Decimal `json:"spend"`
	// Proceeds is coin for a buy and quote for a sell
	Proceeds decimal.Decimal `json:"proceeds"`
}

// Executor places a ticket on a venue
type Executor interface {
	Execute(ctx context.Context, venue string, ticket Ticket) (models.OpenOrder, error)
}

// MarketSource resolves market metadata for a venue
type MarketSource interface {
	Market(venue, symbol string) (models.Market, bool)
}

// Config is what a wizard is built from. The indices must not change while
// the wizard is in use; pass them from one snapshot.
type Config struct {
	Side     models.OrderSide
	Coin     string
	Quote    string
	Prices   *index.PriceIndex
	Balances *index.BalanceIndex
	Markets  MarketSource
	Executor Executor
}

const wizardComponent = "order_wizard"

// Wizard is the order state machine. It is safe for concurrent use.
type Wizard struct {
	mu     sync.Mutex
	cfg    Config
	logger *golog.Logger

	state      State
	candidates []string
	venue      string
	market     models.Market
	orderType  models.OrderType
	reference  float64
	price      float64
	ticket     Ticket
	order      models.OpenOrder
	err        error
}

// NewWizard starts a wizard in StateSelectVenue. It fails with a
// ValidationError when no venue can take the order.
func NewWizard(cfg Config) (*Wizard, error) {
	if cfg.Side != models.OrderSideBuy && cfg.Side != models.OrderSideSell {
		return nil, exchange.NewValidationError("invalid_side", fmt.Sprintf("invalid order side %q", cfg.Side))
	}
	if cfg.Executor == nil || cfg.Markets == nil {
		return nil, exchange.NewValidationError("incomplete_wizard", "executor and market source are required")
	}

	var candidates []string
	if cfg.Side == models.OrderSideBuy {
		candidates = BuyCandidates(cfg.Prices, cfg.Coin, cfg.Quote)
	} else {
		candidates = SellCandidates(cfg.Prices, cfg.Balances, cfg.Coin, cfg.Quote)
	}
	if len(candidates) == 0 {
		return nil, exchange.NewValidationError("no_venues", fmt.Sprintf("no venues support %s/%s", cfg.Coin, cfg.Quote))
	}

	return &Wizard{
		cfg:        cfg,
		logger:     logutil.Default(),
		state:      StateSelectVenue,
		candidates: candidates,
	}, nil
}

// BuyCandidates returns the venues with a bid for coin/quote, sorted
func BuyCandidates(prices *index.PriceIndex, coin, quote string) []string {
	var out []string
	for _, venue := range prices.Venues(index.Bid, quote) {
		if bid, ok := prices.Price(index.Bid, quote, venue, coin); ok && bid > 0 {
			out = append(out, venue)
		}
	}
	return out
}

// SellCandidates returns the venues holding at least MinSellBalance free coin
// that also have an ask for coin/quote, sorted
func SellCandidates(prices *index.PriceIndex, balances *index.BalanceIndex, coin, quote string) []string {
	var out []string
	for _, venue := range prices.Venues(index.Ask, quote) {
		ask, ok := prices.Price(index.Ask, quote, venue, coin)
		if !ok || ask <= 0 {
			continue
		}
		if free, ok := balances.Free(venue, coin); ok && free >= MinSellBalance {
			out = append(out, venue)
		}
	}
	return out
}

// State returns the current state
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Candidates returns the venues SelectVenue accepts
func (w *Wizard) Candidates() []string {
	out := make([]string, len(w.candidates))
	copy(out, w.candidates)
	return out
}

// Reference returns the selected venue's reference price: the ask for a buy
// and the bid for a sell. It is zero before a venue is selected.
func (w *Wizard) Reference() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reference
}

// Free returns the balance the amount is checked against on the selected venue
func (w *Wizard) Free() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.free()
}

func (w *Wizard) free() float64 {
	coin := w.cfg.Quote
	if w.cfg.Side == models.OrderSideSell {
		coin = w.cfg.Coin
	}
	free, _ := w.cfg.Balances.Free(w.venue, coin)
	return free
}

// Ticket returns the resolved order once the wizard reached StateConfirm
func (w *Wizard) Ticket() (Ticket, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ticket, w.state >= StateConfirm && w.state != StateAborted
}

// Result returns the placed order or the execution error
func (w *Wizard) Result() (models.OpenOrder, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order, w.err
}

func (w *Wizard) expect(state State, input string) error {
	if w.state != state {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, input, w.state)
	}
	return nil
}

func (w *Wizard) symbol() string {
	return w.cfg.Coin + "/" + w.cfg.Quote
}

// SelectVenue picks the venue. It must be one of Candidates and have market metadata.
func (w *Wizard) SelectVenue(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(StateSelectVenue, "select venue"); err != nil {
		return err
	}

	found := false
	for _, candidate := range w.candidates {
		if candidate == id {
			found = true
			break
		}
	}
	if !found {
		return exchange.NewValidationError("invalid_venue", fmt.Sprintf("venue %s cannot take this order", id)).WithVenue(id)
	}
	market, ok := w.cfg.Markets.Market(id, w.symbol())
	if !ok {
		return exchange.NewValidationError("unknown_market", fmt.Sprintf("no market %s on %s", w.symbol(), id)).WithVenue(id)
	}

	side := index.Ask
	if w.cfg.Side == models.OrderSideSell {
		side = index.Bid
	}
	w.reference, _ = w.cfg.Prices.Price(side, w.cfg.Quote, id, w.cfg.Coin)
	w.venue = id
	w.market = market
	w.state = StateSelectType
	return nil
}

// SelectType picks market or limit. A market order skips the price step.
func (w *Wizard) SelectType(t models.OrderType) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(StateSelectType, "select type"); err != nil {
		return err
	}

	switch t {
	case models.OrderTypeLimit:
		w.state = StateEnterPrice
	case models.OrderTypeMarket:
		w.price = w.reference
		w.state = StateEnterAmount
	default:
		return exchange.NewValidationError("invalid_type", fmt.Sprintf("invalid order type %q", t))
	}
	w.orderType = t
	return nil
}

// EnterPrice sets the limit price
func (w *Wizard) EnterPrice(input string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(StateEnterPrice, "enter price"); err != nil {
		return err
	}

	price, err := ParsePrice(input, w.reference)
	if err != nil {
		return err
	}
	w.price = price
	w.state = StateEnterAmount
	return nil
}

// EnterAmount sets the spend and resolves the ticket
func (w *Wizard) EnterAmount(input string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(StateEnterAmount, "enter amount"); err != nil {
		return err
	}

	spend, err := ParseAmount(input, w.free())
	if err != nil {
		return err
	}
	ticket, err := w.resolve(spend)
	if err != nil {
		return err
	}
	w.ticket = ticket
	w.state = StateConfirm
	return nil
}

func (w *Wizard) resolve(spend float64) (Ticket, error) {
	price := Round(w.price, w.market.PricePrecision)
	if !price.IsPositive() {
		return Ticket{}, exchange.NewValidationError("too_small", "price too small")
	}

	ticket := Ticket{
		Venue:     w.venue,
		Symbol:    w.symbol(),
		Coin:      w.cfg.Coin,
		Quote:     w.cfg.Quote,
		Side:      w.cfg.Side,
		Type:      w.orderType,
		Reference: w.reference,
		Price:     price,
		Spend:     decimal.NewFromFloat(spend),
	}

	places := int32(w.market.AmountPrecision)
	if w.cfg.Side == models.OrderSideBuy {
		ticket.Amount = ticket.Spend.Div(price).Round(places)
		ticket.Proceeds = ticket.Amount
	} else {
		ticket.Amount = ticket.Spend.Round(places)
		ticket.Proceeds = ticket.Spend.Mul(price).Round(places)
	}
	if !ticket.Amount.IsPositive() {
		return Ticket{}, exchange.NewValidationError("too_small", "amount too small")
	}
	return ticket, nil
}

// Confirm places the order. An executor error moves the wizard to
// StateFailed and is returned.
func (w *Wizard) Confirm(ctx context.Context) (models.OpenOrder, error) {
	w.mu.Lock()
	if err := w.expect(StateConfirm, "confirm"); err != nil {
		w.mu.Unlock()
		return models.OpenOrder{}, err
	}
	w.state = StateExecuting
	ticket := w.ticket
	w.mu.Unlock()

	order, err := w.cfg.Executor.Execute(ctx, ticket.Venue, ticket)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.state = StateFailed
		w.err = err
		w.logger.Warn(
			fmt.Sprintf("Order on %s failed", ticket.Venue),
			golog.String("component", wizardComponent),
			golog.String("venue", ticket.Venue),
			golog.String("symbol", ticket.Symbol),
			golog.String("error", err.Error()),
		)
		return models.OpenOrder{}, err
	}

	w.state = StatePlaced
	w.order = order
	w.logger.Info(
		fmt.Sprintf("Order #%s has been placed", order.ID),
		golog.String("component", wizardComponent),
		golog.String("venue", ticket.Venue),
		golog.String("symbol", ticket.Symbol),
		golog.String("side", ticket.Side.String()),
	)
	return order, nil
}

// Abort ends the wizard without placing anything. It is rejected once the
// order is being sent.
func (w *Wizard) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Terminal() || w.state == StateExecuting {
		return fmt.Errorf("%w: abort in state %s", ErrInvalidTransition, w.state)
	}
	w.state = StateAborted
	return nil
}
