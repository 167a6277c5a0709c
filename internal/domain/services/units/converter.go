// Package units converts between the ledger's display denomination and
// its indivisible raw base unit (1 display unit = 10^30 raw). All
// conversions run on arbitrary-precision decimals; a float anywhere in
// this path would corrupt transferred amounts.
package units

import (
	"strings"

	"github.com/shopspring/decimal"

	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
)

// RawExponent is the power of ten between display and raw units.
const RawExponent = 30

// ToRaw converts a display-unit amount to a raw base-unit decimal
// string. Amounts with more than 30 decimal places do not have a raw
// representation and are rejected.
func ToRaw(display decimal.Decimal) (string, error) {
	if display.IsNegative() {
		return "", domainerrors.ConversionError(display.String())
	}
	raw := display.Shift(RawExponent)
	if !raw.IsInteger() {
		return "", domainerrors.ConversionError(display.String())
	}
	return raw.String(), nil
}

// ToRawString converts a display-unit numeric string to raw units.
func ToRawString(display string) (string, error) {
	d, err := ParseDisplay(display)
	if err != nil {
		return "", err
	}
	return ToRaw(d)
}

// ToDisplay converts a raw base-unit decimal string to display units.
func ToDisplay(raw string) (decimal.Decimal, error) {
	d, err := ParseRaw(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Shift(-RawExponent), nil
}

// ParseDisplay parses a non-negative display-unit amount.
func ParseDisplay(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return decimal.Zero, domainerrors.ConversionError(s)
	}
	return d, nil
}

// ParseRaw parses a non-negative integral raw-unit amount.
func ParseRaw(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() || !d.IsInteger() {
		return decimal.Zero, domainerrors.ConversionError(s)
	}
	return d, nil
}
