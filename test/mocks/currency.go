package mocks

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies is an in-memory ports.CurrencyMetadata. Rates are values of one unit of the
// base currency; a currency without a rate converts at 1.
type Currencies struct {
	Places  map[string]int32
	Rates   map[string]decimal.Decimal
	Enabled map[string]bool
}

// NewCurrencies creates a table with USD, EUR and JPY enabled at parity
func NewCurrencies() *Currencies {
	return &Currencies{
		Places:  map[string]int32{"USD": 2, "EUR": 2, "JPY": 0},
		Rates:   map[string]decimal.Decimal{},
		Enabled: map[string]bool{"USD": true, "EUR": true, "JPY": true},
	}
}

func (c *Currencies) DecimalPlaces(code string) (int32, bool) {
	places, ok := c.Places[strings.ToUpper(code)]
	return places, ok
}

func (c *Currencies) Convert(amount decimal.Decimal, from, to string) decimal.Decimal {
	return amount.Div(c.rate(from)).Mul(c.rate(to))
}

func (c *Currencies) IsEnabled(code string) bool {
	return c.Enabled[strings.ToUpper(code)]
}

func (c *Currencies) rate(code string) decimal.Decimal {
	if r, ok := c.Rates[strings.ToUpper(code)]; ok {
		return r
	}
	return decimal.NewFromInt(1)
}
