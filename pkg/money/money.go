package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDecimalPlaces is used for currencies missing from the precision table
const DefaultDecimalPlaces int32 = 2

// ErrOutOfRange is returned when an amount has no int64 minor-unit representation
var ErrOutOfRange = errors.New("amount out of range for minor units")

// PrecisionTable reports the minor-unit precision of a currency code
type PrecisionTable interface {
	DecimalPlaces(code string) (places int32, ok bool)
}

// ISO4217 is a PrecisionTable covering the currencies whose precision differs from two places
type ISO4217 struct{}

var nonDefaultPlaces = map[string]int32{
	// zero-decimal
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"PYG": 0, "RWF": 0, "UGX": 0, "UYI": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	// three-decimal
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// DecimalPlaces implements PrecisionTable
func (ISO4217) DecimalPlaces(code string) (int32, bool) {
	places, ok := nonDefaultPlaces[strings.ToUpper(code)]
	if !ok {
		return DefaultDecimalPlaces, true
	}
	return places, true
}

// Converter converts between decimal major units and integer minor units.
// All methods are pure.
type Converter struct {
	table PrecisionTable
}

// NewConverter creates a converter backed by table; a nil table falls back to ISO4217
func NewConverter(table PrecisionTable) *Converter {
	if table == nil {
		table = ISO4217{}
	}
	return &Converter{table: table}
}

// Places returns the decimal places of currency, DefaultDecimalPlaces when unknown
func (c *Converter) Places(currency string) int32 {
	places, ok := c.table.DecimalPlaces(currency)
	if !ok || places < 0 {
		return DefaultDecimalPlaces
	}
	return places
}

// ToMinorUnits returns round(amount * 10^places), rounding half away from zero.
// Results outside int64 return ErrOutOfRange.
func (c *Converter) ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	minor := amount.Shift(c.Places(currency)).Round(0)
	if !minor.BigInt().IsInt64() {
		return 0, ErrOutOfRange
	}
	return minor.IntPart(), nil
}

// ToMajorUnits returns amount / 10^places
func (c *Converter) ToMajorUnits(amount int64, currency string) decimal.Decimal {
	places := c.Places(currency)
	return decimal.New(amount, -places)
}

// Format renders minor units as a fixed-point string at the currency's precision
func (c *Converter) Format(amount int64, currency string) string {
	return c.ToMajorUnits(amount, currency).StringFixed(c.Places(currency))
}

var defaultConverter = NewConverter(nil)

// ToMinorUnits converts using the ISO4217 table
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	return defaultConverter.ToMinorUnits(amount, currency)
}

// ToMajorUnits converts using the ISO4217 table
func ToMajorUnits(amount int64, currency string) decimal.Decimal {
	return defaultConverter.ToMajorUnits(amount, currency)
}
