package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies whose smallest gateway unit is one whole unit.
// https://stripe.com/docs/currencies#zero-decimal
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {},
	"KRW": {}, "MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
	"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// IsZeroDecimal reports whether the currency has no minor unit at the gateway.
func IsZeroDecimal(currency string) bool {
	_, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]
	return ok
}

// ToMinor converts m to the gateway's integer representation.
func ToMinor(m Money) int64 {
	if IsZeroDecimal(m.Currency) {
		return m.Amount.Round(0).IntPart()
	}
	return m.Amount.Shift(2).Round(0).IntPart()
}

// FromMinor is the inverse of ToMinor.
func FromMinor(amount int64, currency string) Money {
	d := decimal.NewFromInt(amount)
	if !IsZeroDecimal(currency) {
		d = d.Shift(-2)
	}
	return New(d, currency)
}
