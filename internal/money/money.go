package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Rounding selects the strategy applied when reducing a value to a fixed
// number of decimal places. Profiles may mandate a specific strategy.
type Rounding int

const (
	RoundHalfUp Rounding = iota
	RoundHalfEven
	RoundTruncate
)

func (r Rounding) String() string {
	switch r {
	case RoundHalfUp:
		return "half-up"
	case RoundHalfEven:
		return "half-even"
	case RoundTruncate:
		return "truncate"
	default:
		return "unknown"
	}
}

// DefaultPlaces is the minor-unit scale used for EUR and most ISO 4217
// currencies.
const DefaultPlaces = 2

// CurrencyMismatchError is returned when two values of different currencies
// are combined.
type CurrencyMismatchError struct {
	Left  string
	Right string
	Op    string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch in %s: %s vs %s", e.Op, e.Left, e.Right)
}

// Money is an exact fixed-point amount in a single currency. The zero value
// (zero amount, empty currency) combines with any currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// New creates a Money from a decimal amount and currency code.
func New(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// FromString parses an amount like "100.00".
func FromString(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: d, Currency: currency}, nil
}

// MustFromString parses an amount, panics on error. Intended for constants
// and tests.
func MustFromString(s, currency string) Money {
	m, err := FromString(s, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) checkCurrency(other Money, op string) error {
	if m.Currency == "" || other.Currency == "" {
		return nil
	}
	if m.Currency != other.Currency {
		return &CurrencyMismatchError{Left: m.Currency, Right: other.Currency, Op: op}
	}
	return nil
}

// mergedCurrency picks the non-empty currency of the pair.
func (m Money) mergedCurrency(other Money) string {
	if m.Currency != "" {
		return m.Currency
	}
	return other.Currency
}

// Add returns m + other. Fails on mixed currencies.
func (m Money) Add(other Money) (Money, error) {
	if err := m.checkCurrency(other, "add"); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.mergedCurrency(other)}, nil
}

// Sub returns m - other. Fails on mixed currencies.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.checkCurrency(other, "sub"); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.mergedCurrency(other)}, nil
}

// MulScalar returns m scaled by a dimensionless factor (quantity, rate).
func (m Money) MulScalar(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor), Currency: m.Currency}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// Round applies the rounding strategy at the given number of decimal places.
func (m Money) Round(strategy Rounding, places int32) Money {
	var amt decimal.Decimal
	switch strategy {
	case RoundHalfEven:
		amt = m.Amount.RoundBank(places)
	case RoundTruncate:
		amt = m.Amount.Truncate(places)
	default:
		amt = m.Amount.Round(places)
	}
	return Money{Amount: amt, Currency: m.Currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// Equal reports amount equality; currencies must match for true.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// WithinTolerance reports whether |m - other| <= tol. Fails on mixed
// currencies.
func (m Money) WithinTolerance(other Money, tol decimal.Decimal) (bool, error) {
	diff, err := m.Sub(other)
	if err != nil {
		return false, err
	}
	return diff.Amount.Abs().LessThanOrEqual(tol), nil
}

// Cmp compares amounts: -1 if m < other, 0 if equal, +1 if m > other.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.checkCurrency(other, "cmp"); err != nil {
		return 0, err
	}
	return m.Amount.Cmp(other.Amount), nil
}

// Sum folds values with Add. Empty input yields a zero Money with the given
// currency.
func Sum(currency string, values ...Money) (Money, error) {
	total := Zero(currency)
	for _, v := range values {
		var err error
		total, err = total.Add(v)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// String renders the amount at minor-unit scale, e.g. "297.50 EUR".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(DefaultPlaces), m.Currency)
}
