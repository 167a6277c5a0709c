package units_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
	"github.com/xnotip/tipbot_service/internal/domain/services/units"
)

func TestToRaw(t *testing.T) {
	cases := []struct {
		display string
		raw     string
	}{
		{"1", "1000000000000000000000000000000"},
		{"0.5", "500000000000000000000000000000"},
		{"5", "5000000000000000000000000000000"},
		{"0.000000000000000000000000000001", "1"},
		{"0", "0"},
	}
	for _, tc := range cases {
		raw, err := units.ToRawString(tc.display)
		require.NoError(t, err, tc.display)
		assert.Equal(t, tc.raw, raw, tc.display)
	}
}

func TestToRawRejectsInvalid(t *testing.T) {
	for _, input := range []string{"abc", "-1", "1e-31", "0.0000000000000000000000000000001", ""} {
		_, err := units.ToRawString(input)
		assert.ErrorIs(t, err, domainerrors.ErrConversionError, input)
	}
}

func TestToDisplay(t *testing.T) {
	d, err := units.ToDisplay("1500000000000000000000000000000")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("1.5")))

	_, err = units.ToDisplay("1.5")
	assert.ErrorIs(t, err, domainerrors.ErrConversionError, "raw amounts are integral")

	_, err = units.ToDisplay("-3")
	assert.ErrorIs(t, err, domainerrors.ErrConversionError)
}

func TestRoundTrip(t *testing.T) {
	for _, raw := range []string{"1", "137", "1000000000000000000000000000000", "340282366920938463463374607431768211455"} {
		display, err := units.ToDisplay(raw)
		require.NoError(t, err)
		back, err := units.ToRaw(display)
		require.NoError(t, err)
		assert.Equal(t, raw, back)
	}
}
