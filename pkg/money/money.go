package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders an amount with two fraction digits and the currency
// code, e.g. "121.00 EUR". Rounding happens here and nowhere else; amounts
// stay exact decimals everywhere upstream.
func FormatAmount(amount decimal.Decimal, currency string) string {
	return fmt.Sprintf("%s %s", amount.StringFixed(2), strings.ToUpper(currency))
}

// ToMinorUnits converts a major-unit amount into the currency's minor units
// (cents for exponent-2 currencies), rounding half away from zero. Payment
// processors take transfer amounts in minor units.
func ToMinorUnits(amount decimal.Decimal, minorUnit int) int64 {
	return amount.Shift(int32(minorUnit)).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(units int64, minorUnit int) decimal.Decimal {
	return decimal.NewFromInt(units).Shift(int32(-minorUnit))
}
