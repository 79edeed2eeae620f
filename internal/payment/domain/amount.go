package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {},
	"MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {},
	"XOF": {}, "XPF": {},
}

var threeDecimalCurrencies = map[string]struct{}{
	"BHD": {}, "JOD": {}, "KWD": {}, "OMR": {}, "TND": {},
}

// NormalizeCurrency returns the ISO code in upper case.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// Exponent is the number of minor-unit digits for currency.
func Exponent(currency string) int32 {
	code := NormalizeCurrency(currency)
	if _, ok := zeroDecimalCurrencies[code]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[code]; ok {
		return 3
	}
	return 2
}

// FromMinorUnits converts a provider amount in minor units to major units.
// The conversion is exact and must be applied exactly once.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	exp := Exponent(currency)
	return decimal.New(amount, -exp)
}
