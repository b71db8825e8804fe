package tradingcp

import (
	"github.com/evdnx/tradingcp/arbitrage"
	"github.com/evdnx/tradingcp/exchange"
	"github.com/evdnx/tradingcp/index"
	"github.com/evdnx/tradingcp/order"
)

type (
	// Re-export domain types so consumers can stay on the tradingcp package.
	Venue         = exchange.Venue
	Capability    = exchange.Capability
	ErrorType     = exchange.ErrorType
	ExchangeError = exchange.ExchangeError
	Opportunity   = arbitrage.Opportunity
	BalanceReport = index.BalanceReport
	Ticket        = order.Ticket
)

const (
	ErrorTypeHTTP           = exchange.ErrorTypeHTTP
	ErrorTypeNetwork        = exchange.ErrorTypeNetwork
	ErrorTypeRateLimit      = exchange.ErrorTypeRateLimit
	ErrorTypeAuthentication = exchange.ErrorTypeAuthentication
	ErrorTypeParsing        = exchange.ErrorTypeParsing
	ErrorTypeValidation     = exchange.ErrorTypeValidation
	ErrorTypeConfiguration  = exchange.ErrorTypeConfiguration
	ErrorTypeExchange       = exchange.ErrorTypeExchange
	ErrorTypeUnknown        = exchange.ErrorTypeUnknown
)

func IsTransportError(err error) bool {
	return exchange.IsTransportError(err)
}

func IsParsingError(err error) bool {
	return exchange.IsParsingError(err)
}

func IsValidationError(err error) bool {
	return exchange.IsValidationError(err)
}

func IsConfigurationError(err error) bool {
	return exchange.IsConfigurationError(err)
}
