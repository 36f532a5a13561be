package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

type currencyRow struct {
	rate    decimal.Decimal
	places  int32
	enabled bool
}

// CurrencyTable implements ports.CurrencyMetadata over an in-memory snapshot of the
// host currency table. Rates are the value of one unit of the default currency.
type CurrencyTable struct {
	db   *DB
	mu   sync.RWMutex
	rows map[string]currencyRow
}

// LoadCurrencyTable reads the currency table
func LoadCurrencyTable(ctx context.Context, db *DB) (*CurrencyTable, error) {
	t := &CurrencyTable{db: db}
	if err := t.Reload(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload refreshes the snapshot, picking up new exchange rates
func (t *CurrencyTable) Reload(ctx context.Context) error {
	ctx, cancel := t.db.queryContext(ctx)
	defer cancel()

	rows, err := t.db.conn(ctx).Query(ctx, `SELECT code, decimal_place, value::text, status FROM currency`)
	if err != nil {
		return fmt.Errorf("load currencies: %w", err)
	}
	defer rows.Close()

	loaded := make(map[string]currencyRow)
	for rows.Next() {
		var (
			code    string
			places  int16
			value   string
			enabled bool
		)
		if err := rows.Scan(&code, &places, &value, &enabled); err != nil {
			return fmt.Errorf("scan currency: %w", err)
		}
		rate, err := decimal.NewFromString(value)
		if err != nil || !rate.IsPositive() {
			rate = decimal.NewFromInt(1)
		}
		loaded[strings.ToUpper(strings.TrimSpace(code))] = currencyRow{rate: rate, places: int32(places), enabled: enabled}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load currencies: %w", err)
	}

	t.mu.Lock()
	t.rows = loaded
	t.mu.Unlock()
	return nil
}

// DecimalPlaces reports the minor-unit precision of code
func (t *CurrencyTable) DecimalPlaces(code string) (int32, bool) {
	row, ok := t.lookup(code)
	return row.places, ok
}

// Convert converts amount between currencies; unknown currencies convert at 1
func (t *CurrencyTable) Convert(amount decimal.Decimal, from, to string) decimal.Decimal {
	return amount.Div(t.rate(from)).Mul(t.rate(to))
}

// IsEnabled reports whether the store accepts the currency
func (t *CurrencyTable) IsEnabled(code string) bool {
	row, ok := t.lookup(code)
	return ok && row.enabled
}

func (t *CurrencyTable) rate(code string) decimal.Decimal {
	if row, ok := t.lookup(code); ok {
		return row.rate
	}
	return decimal.NewFromInt(1)
}

func (t *CurrencyTable) lookup(code string) (currencyRow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[strings.ToUpper(code)]
	return row, ok
}
