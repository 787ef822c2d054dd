package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code. Cashfree settles donations in rupees only.
type Currency string

const CurrencyINR Currency = "INR"

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	return c == CurrencyINR
}

// ParseCurrency accepts any casing and surrounding space.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency %q", value)
	}
	return c, nil
}
