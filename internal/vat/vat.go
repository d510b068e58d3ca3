package vat

import (
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// BusinessCategory describes how a creator is registered for tax purposes.
type BusinessCategory string

const (
	CategoryIndividual    BusinessCategory = "individual"
	CategoryVATRegistered BusinessCategory = "vat_registered"
	CategoryVATExempt     BusinessCategory = "vat_exempt"
)

var ErrInvalidBusinessCategory = errors.New("invalid_business_category")

// ParseBusinessCategory validates a raw category value at the boundary.
func ParseBusinessCategory(raw string) (BusinessCategory, error) {
	switch BusinessCategory(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryIndividual:
		return CategoryIndividual, nil
	case CategoryVATRegistered:
		return CategoryVATRegistered, nil
	case CategoryVATExempt:
		return CategoryVATExempt, nil
	default:
		return "", ErrInvalidBusinessCategory
	}
}

// Rule identifies which classification branch matched.
const (
	RuleDutchVAT      = "dutch_vat"
	RuleReverseCharge = "reverse_charge"
	RuleNoVAT         = "no_vat"
)

// Result is the outcome of classifying one amount. Amounts are exact
// decimals; display rounding is money.FormatAmount's job.
type Result struct {
	Rate           decimal.Decimal
	VATAmount      decimal.Decimal
	Total          decimal.Decimal
	ReverseCharged bool
	Explanation    string
	Rule           string
}

var dutchRate = decimal.RequireFromString("0.21")

// euMemberStates is the closed set of 27 member-state ISO 3166-1 alpha-2
// codes. Membership checks run on normalized uppercase codes.
var euMemberStates = map[string]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "HR": {}, "CY": {}, "CZ": {}, "DK": {},
	"EE": {}, "FI": {}, "FR": {}, "DE": {}, "GR": {}, "HU": {}, "IE": {},
	"IT": {}, "LV": {}, "LT": {}, "LU": {}, "MT": {}, "NL": {}, "PL": {},
	"PT": {}, "RO": {}, "SK": {}, "SI": {}, "ES": {}, "SE": {},
}

// IsEUMember reports whether code names an EU member state. Unknown codes
// are simply not members; there is no error path.
func IsEUMember(code string) bool {
	_, ok := euMemberStates[normalizeCountry(code)]
	return ok
}

// EUMemberStates returns the member-state codes in sorted order.
func EUMemberStates() []string {
	codes := make([]string, 0, len(euMemberStates))
	for code := range euMemberStates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Classify maps (amount, country, category) to a VAT outcome. First match
// wins:
//
//  1. NL + vat_registered charges Dutch VAT at 21%.
//  2. Other EU members + vat_registered shift VAT to the buyer (reverse
//     charge, 0%).
//  3. Everything else carries no VAT.
//
// Classify is a total function: unrecognized countries fall through to the
// no-VAT branch and are never an error.
func Classify(amount decimal.Decimal, countryCode string, category BusinessCategory) Result {
	country := normalizeCountry(countryCode)

	if category == CategoryVATRegistered {
		if country == "NL" {
			vatAmount := amount.Mul(dutchRate)
			return Result{
				Rate:           dutchRate,
				VATAmount:      vatAmount,
				Total:          amount.Add(vatAmount),
				ReverseCharged: false,
				Explanation:    "Dutch VAT (21%) applied.",
				Rule:           RuleDutchVAT,
			}
		}
		if _, ok := euMemberStates[country]; ok {
			return Result{
				Rate:           decimal.Zero,
				VATAmount:      decimal.Zero,
				Total:          amount,
				ReverseCharged: true,
				Explanation:    "EU VAT reverse charge (VAT shifted).",
				Rule:           RuleReverseCharge,
			}
		}
	}

	return Result{
		Rate:           decimal.Zero,
		VATAmount:      decimal.Zero,
		Total:          amount,
		ReverseCharged: false,
		Explanation:    "No VAT applicable.",
		Rule:           RuleNoVAT,
	}
}

func normalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
