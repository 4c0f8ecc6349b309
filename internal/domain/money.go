package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits an Amount carries. Amounts
// are stored as int64 minor units at this scale (cents for two-digit
// currencies) and serialize on the wire as plain JSON numbers in major units,
// e.g. Amount(100050) <-> 1000.5. Repeated add/subtract cycles therefore
// never accumulate binary rounding drift.
const AmountScale = 2

// Amount is a monetary value in minor units.
type Amount int64

// ParseAmount converts a decimal string in major units into an Amount.
// Values with more than AmountScale fractional digits are rejected rather
// than rounded.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q is not a number", ErrInvalidInput, s)
	}
	minor := d.Shift(AmountScale)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: amount %s has more than %d decimal places", ErrInvalidInput, d, AmountScale)
	}
	bi := minor.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("%w: amount %s is out of range", ErrInvalidInput, d)
	}
	return Amount(bi.Int64()), nil
}

// Decimal returns the amount as an exact decimal in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -AmountScale)
}

func (a Amount) String() string {
	return a.Decimal().String()
}

// MarshalJSON encodes the amount as a plain JSON number in major units.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal().String()), nil
}

// UnmarshalJSON accepts a JSON number, or a string holding one.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
