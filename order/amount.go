package order

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/evdnx/tradingcp/exchange"
	"github.com/shopspring/decimal"
)

const (
	// MinPrice is the smallest accepted limit price
	MinPrice = 0.00000001
	// MinAmount is the smallest accepted spend
	MinAmount = 0.001
	// MinSellBalance is the smallest free balance that makes a venue a sell candidate
	MinSellBalance = 0.0000001
)

var quantityPattern = regexp.MustCompile(`([\d.]+)(%)?`)

// ParseQuantity reads "12.5" or "50%". A percentage is taken of base.
func ParseQuantity(input string, base float64) (float64, error) {
	m := quantityPattern.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil || m[1] == "" {
		return 0, exchange.NewValidationError("invalid_amount", fmt.Sprintf("invalid amount %q", input))
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, exchange.NewValidationError("invalid_amount", fmt.Sprintf("invalid amount %q", input))
	}
	if m[2] == "%" {
		value = value / 100 * base
	}
	return value, nil
}

// ParsePrice reads a limit price. Empty input selects the reference price and
// a percentage is taken of it.
func ParsePrice(input string, reference float64) (float64, error) {
	if strings.TrimSpace(input) == "" {
		return reference, nil
	}
	price, err := ParseQuantity(input, reference)
	if err != nil {
		return 0, err
	}
	if price < MinPrice {
		return 0, exchange.NewValidationError("too_small", "price too small")
	}
	return price, nil
}

// ParseAmount reads a spend against the free balance
func ParseAmount(input string, free float64) (float64, error) {
	amount, err := ParseQuantity(input, free)
	if err != nil {
		return 0, err
	}
	if amount < MinAmount {
		return 0, exchange.NewValidationError("too_small", "amount too small")
	}
	if amount > free {
		return 0, exchange.NewValidationError("too_big", "amount too big")
	}
	return amount, nil
}

// Round rounds v to places decimals, half away from zero
func Round(v float64, places int) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(int32(places))
}
