package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a signed quantity of minor currency units (1/100 of the currency).
type Amount int64

// Epsilon is the settlement tolerance: one minor unit.
const Epsilon Amount = 1

const minorDigits = 2

// ParseAmount parses user input such as "90", "12.5" or "1,200.75".
// The value is rounded to two decimals and must be positive.
func ParseAmount(text string) (Amount, error) {
	s := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if s == "" {
		return 0, fmt.Errorf("%w: 金額が空です", ErrInvalidInput)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: 金額を解釈できません %q", ErrInvalidInput, text)
	}
	cents := d.Round(minorDigits).Shift(minorDigits)
	if !cents.IsPositive() {
		return 0, fmt.Errorf("%w: 金額は0より大きくしてください", ErrInvalidInput)
	}
	if !cents.LessThan(decimal.NewFromInt(1 << 53)) {
		return 0, fmt.Errorf("%w: 金額が大きすぎます", ErrInvalidInput)
	}
	return Amount(cents.IntPart()), nil
}

// Decimal converts the amount back to currency units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -minorDigits)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(minorDigits)
}

// Abs returns the magnitude of a.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}
