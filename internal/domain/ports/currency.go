package ports

import "github.com/shopspring/decimal"

// CurrencyMetadata is the host's currency table.
type CurrencyMetadata interface {
	// DecimalPlaces reports the minor-unit precision of code; ok is false for unknown currencies
	DecimalPlaces(code string) (places int32, ok bool)
	// Convert converts amount between currencies using the host's exchange rates
	Convert(amount decimal.Decimal, from, to string) decimal.Decimal
	// IsEnabled reports whether the host store accepts the currency
	IsEnabled(code string) bool
}
