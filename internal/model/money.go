package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultMinorUnits is used for currencies missing from minorUnits
const DefaultMinorUnits int32 = 2

// minorUnits maps ISO-4217 codes to the number of decimal places of their minor unit
var minorUnits = map[string]int32{
	"KES": 2,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"NOK": 2,
	"SEK": 2,
	"JPY": 0,
	"KWD": 3,
}

// MinorUnits returns the decimal places used to store amounts in currency
func MinorUnits(currency string) int32 {
	if places, ok := minorUnits[strings.ToUpper(currency)]; ok {
		return places
	}
	return DefaultMinorUnits
}

// RoundMoney rounds half-up to the currency's minor unit.
// decimal.Round rounds half away from zero, which is half-up for the non-negative amounts stored here.
func RoundMoney(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(MinorUnits(currency))
}

// ValidateAmount checks that amount is positive and representable in the currency's minor unit.
// Amounts with extra precision are rejected rather than silently rounded.
func ValidateAmount(amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(MinorUnits(currency))) {
		return ErrInvalidAmount
	}
	return nil
}

// ParseAmount parses a decimal string such as "100.00"
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
