package domain

import "strings"

type Currency string

const (
	CurrencyKES Currency = "KES"
	CurrencyUGX Currency = "UGX"
	CurrencyTZS Currency = "TZS"
)

var currencyExponents = map[Currency]int32{
	CurrencyKES: 2,
	CurrencyUGX: 0,
	CurrencyTZS: 2,
}

// ParseCurrency normalizes code and reports whether it is supported.
func ParseCurrency(code string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	_, ok := currencyExponents[c]
	return c, ok
}

func (c Currency) Valid() bool {
	_, ok := currencyExponents[c]
	return ok
}

// Exponent is the number of minor-unit digits of the currency.
func (c Currency) Exponent() int32 {
	return currencyExponents[c]
}

// AmountRule constrains the amounts accepted for one currency. Zero fields are
// unconstrained; Exact wins over Min and Max.
type AmountRule struct {
	Exact int64
	Min   int64
	Max   int64
}

func (r AmountRule) Allows(amount int64) bool {
	if amount <= 0 {
		return false
	}
	if r.Exact > 0 {
		return amount == r.Exact
	}
	if r.Min > 0 && amount < r.Min {
		return false
	}
	if r.Max > 0 && amount > r.Max {
		return false
	}
	return true
}
