package index

import (
	"github.com/evdnx/tradingcp/models"
)

// OpenOrderIndex keys open orders as BySymbol[symbol][venue][orderID]
type OpenOrderIndex struct {
	BySymbol map[string]map[string]map[string]models.OpenOrder `json:"bySymbol"`
}

// NewOpenOrderIndex returns an empty index
func NewOpenOrderIndex() *OpenOrderIndex {
	return &OpenOrderIndex{BySymbol: make(map[string]map[string]map[string]models.OpenOrder)}
}

// BuildOpenOrderIndex indexes open orders keyed by venue
func BuildOpenOrderIndex(ordersByVenue map[string][]models.OpenOrder) *OpenOrderIndex {
	idx := NewOpenOrderIndex()
	for _, venue := range sortedKeys(ordersByVenue) {
		for _, order := range ordersByVenue[venue] {
			byVenue, ok := idx.BySymbol[order.Symbol]
			if !ok {
				byVenue = make(map[string]map[string]models.OpenOrder)
				idx.BySymbol[order.Symbol] = byVenue
			}
			byID, ok := byVenue[venue]
			if !ok {
				byID = make(map[string]models.OpenOrder)
				byVenue[venue] = byID
			}
			byID[order.ID] = order
		}
	}
	return idx
}

// Order looks up one order
func (o *OpenOrderIndex) Order(symbol, venue, id string) (models.OpenOrder, bool) {
	if o == nil {
		return models.OpenOrder{}, false
	}
	order, ok := o.BySymbol[symbol][venue][id]
	return order, ok
}

// Venues returns the venues with open orders on symbol, sorted
func (o *OpenOrderIndex) Venues(symbol string) []string {
	if o == nil {
		return nil
	}
	return sortedKeys(o.BySymbol[symbol])
}

// IDs returns the order ids on venue for symbol, sorted
func (o *OpenOrderIndex) IDs(symbol, venue string) []string {
	if o == nil {
		return nil
	}
	return sortedKeys(o.BySymbol[symbol][venue])
}

// Orders flattens the orders for symbol, ordered by venue then id
func (o *OpenOrderIndex) Orders(symbol string) []models.OpenOrder {
	var out []models.OpenOrder
	for _, venue := range o.Venues(symbol) {
		for _, id := range o.IDs(symbol, venue) {
			out = append(out, o.BySymbol[symbol][venue][id])
		}
	}
	return out
}

// Len counts every indexed order
func (o *OpenOrderIndex) Len() int {
	if o == nil {
		return 0
	}
	n := 0
	for _, byVenue := range o.BySymbol {
		for _, byID := range byVenue {
			n += len(byID)
		}
	}
	return n
}

// Without returns a copy of the index lacking one order. The receiver is not modified.
func (o *OpenOrderIndex) Without(symbol, venue, id string) *OpenOrderIndex {
	out := NewOpenOrderIndex()
	if o == nil {
		return out
	}
	for sym, byVenue := range o.BySymbol {
		for v, byID := range byVenue {
			for orderID, order := range byID {
				if sym == symbol && v == venue && orderID == id {
					continue
				}
				if out.BySymbol[sym] == nil {
					out.BySymbol[sym] = make(map[string]map[string]models.OpenOrder)
				}
				if out.BySymbol[sym][v] == nil {
					out.BySymbol[sym][v] = make(map[string]models.OpenOrder)
				}
				out.BySymbol[sym][v][orderID] = order
			}
		}
	}
	return out
}
