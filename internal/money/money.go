package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

// ParseMinor converts a decimal string like "1250.00" into signed minor
// units. At most two decimal places are accepted.
func ParseMinor(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	shifted := value.Shift(2)
	if !shifted.IsInteger() {
		return 0, ErrTooManyDecimals
	}
	if !shifted.BigInt().IsInt64() {
		return 0, ErrInvalidAmount
	}
	return shifted.IntPart(), nil
}

// FormatMinor renders minor units as a major-unit string with two decimals.
func FormatMinor(value int64) string {
	return decimal.NewFromInt(value).Shift(-2).StringFixed(2)
}
