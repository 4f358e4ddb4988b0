package money

import (
	"errors"
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code for one of the marketplace's supported
// settlement currencies.
type Currency string

const (
	USD Currency = "USD"
	CAD Currency = "CAD"
	HTG Currency = "HTG"
)

// ErrCurrencyMismatch is returned when arithmetic mixes currencies. Amounts
// are never converted implicitly; cross-currency totals stay in separate
// per-currency buckets.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// supported currencies all use 2 decimal places (cents / centimes).
var supported = map[Currency]bool{USD: true, CAD: true, HTG: true}

// Valid reports whether c is a supported settlement currency.
func Valid(c Currency) bool {
	return supported[c]
}

// Money is a fixed-point amount in minor units (cents/centimes) tagged with
// its currency. All arithmetic is integer-only; no floating point touches a
// monetary amount anywhere in the engine.
type Money struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

// New returns a Money value in minor units.
func New(amount int64, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns the zero amount in the given currency.
func Zero(currency Currency) Money {
	return Money{Amount: 0, Currency: currency}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// Add returns m + other. Fails with ErrCurrencyMismatch if the currencies
// differ.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("add %s to %s: %w", other.Currency, m.Currency, ErrCurrencyMismatch)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Subtract returns m - other. Fails with ErrCurrencyMismatch if the
// currencies differ.
func (m Money) Subtract(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("subtract %s from %s: %w", other.Currency, m.Currency, ErrCurrencyMismatch)
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Compare returns -1, 0 or 1 as m is less than, equal to or greater than
// other. Fails with ErrCurrencyMismatch if the currencies differ.
func (m Money) Compare(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("compare %s with %s: %w", m.Currency, other.Currency, ErrCurrencyMismatch)
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// MulRatio returns m scaled by num/den, rounded half-up to the minor unit.
// This is the single rounding point for derived amounts (fees); callers must
// not re-round the result.
func (m Money) MulRatio(num, den int64) Money {
	return Money{Amount: RoundHalfUpRatio(m.Amount*num, den), Currency: m.Currency}
}

// RoundHalfUpRatio divides numerator by denominator rounding half away from
// zero to the nearest integer. denominator must be positive.
func RoundHalfUpRatio(numerator, denominator int64) int64 {
	if denominator <= 0 {
		panic("money: non-positive denominator")
	}
	if numerator >= 0 {
		return (numerator + denominator/2) / denominator
	}
	return -((-numerator + denominator/2) / denominator)
}

// FormatForDisplay renders the amount with the currency's canonical 2
// decimal places. French-Haiti locales use a comma decimal separator; every
// other locale gets a period.
func (m Money) FormatForDisplay(locale string) string {
	units := m.Amount / 100
	cents := m.Amount % 100
	if cents < 0 {
		cents = -cents
	}
	sep := "."
	if strings.HasPrefix(strings.ToLower(locale), "fr") {
		sep = ","
	}
	sign := ""
	if m.Amount < 0 && units == 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s%d%s%02d %s", sign, units, sep, cents, m.Currency)
}

// ProjectPreferred collapses per-currency buckets to a single display
// figure: the preferred bucket when it is non-zero, otherwise the bucket
// with the largest absolute magnitude. ok is false when every bucket is
// zero (no earnings).
func ProjectPreferred(byCurrency map[Currency]Money, preferred Currency) (Money, bool) {
	if m, exists := byCurrency[preferred]; exists && !m.IsZero() {
		return m, true
	}

	var best Money
	found := false
	for _, m := range byCurrency {
		if m.IsZero() {
			continue
		}
		if !found || abs(m.Amount) > abs(best.Amount) {
			best = m
			found = true
		}
	}
	if !found {
		return Zero(preferred), false
	}
	return best, true
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
