package normalizer

import (
	"regexp"
	"strings"

	"github.com/aristath/exposure-engine/internal/domain"
)

var (
	bloombergRE = regexp.MustCompile(`^[A-Z0-9/.\-]+\s+[A-Z]{2}$`)
	reutersRE   = regexp.MustCompile(`^[A-Z0-9/\-]+\.[A-Z]{1,2}$`)
	yahooDashRE = regexp.MustCompile(`^[A-Z]+-[A-Z]$`)
	numericRE   = regexp.MustCompile(`^[0-9]+$`)
)

// bloombergCountryHints maps a Bloomberg two-letter exchange code to a
// country hint (§4.1).
var bloombergCountryHints = map[string]string{
	"US": "US",
	"TT": "TW",
	"LN": "GB",
	"GR": "DE",
	"FP": "FR",
	"JP": "JP",
	"HK": "HK",
	"CN": "CA",
	"AU": "AU",
}

// countryCurrencyHints maps a country hint to the currency the
// resolver's eager contribution infers from it — the same Bloomberg
// two-letter map, one hop further, per Open Question #3 (no broader
// currency inference table is implemented).
var countryCurrencyHints = map[string]string{
	"US": "USD",
	"TW": "TWD",
	"GB": "GBP",
	"DE": "EUR",
	"FR": "EUR",
	"JP": "JPY",
	"HK": "HKD",
	"CA": "CAD",
	"AU": "AUD",
}

// CurrencyForHint returns the currency inferred from a ParseTicker
// country/exchange hint, or "" when the hint is empty or unmapped.
func CurrencyForHint(hint string) string {
	return countryCurrencyHints[hint]
}

// DetectFormat classifies a ticker's shape for observability (§4.1).
// Safe on empty input.
func DetectFormat(ticker string) domain.FormatType {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return domain.FormatPlain
	}

	switch {
	case bloombergRE.MatchString(t):
		return domain.FormatBloomberg
	case reutersRE.MatchString(t):
		return domain.FormatReuters
	case yahooDashRE.MatchString(t):
		return domain.FormatYahooDash
	case numericRE.MatchString(t):
		return domain.FormatNumeric
	default:
		return domain.FormatPlain
	}
}

// ParseTicker detects the ticker format and returns the root symbol plus
// an optional country/exchange hint (empty string if none applies).
// Safe on empty input, returning ("", "").
func ParseTicker(ticker string) (root string, hint string) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return "", ""
	}

	switch DetectFormat(t) {
	case domain.FormatBloomberg:
		parts := strings.Fields(t)
		code := parts[len(parts)-1]
		root = strings.Join(parts[:len(parts)-1], " ")
		hint = bloombergCountryHints[code]
		return root, hint
	case domain.FormatReuters:
		idx := strings.LastIndex(t, ".")
		return t[:idx], t[idx+1:]
	case domain.FormatYahooDash:
		return t, ""
	default:
		return t, ""
	}
}

// GenerateVariants emits, in order: the original ticker, its parsed
// root, and variants obtained by substituting among "/", "-", "." and
// by stripping the separator entirely, always de-duplicated and always
// containing the input ticker (§4.1, §8).
func GenerateVariants(ticker string) []string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return []string{}
	}

	root, _ := ParseTicker(t)

	variants := []string{t, root}

	if strings.ContainsAny(root, "/-.") {
		variants = append(variants,
			strings.ReplaceAll(root, "/", "-"),
			strings.ReplaceAll(root, "/", "."),
			strings.ReplaceAll(root, "-", "/"),
			strings.ReplaceAll(root, "-", "."),
			strings.ReplaceAll(root, ".", "-"),
			strings.ReplaceAll(root, ".", "/"),
			strings.NewReplacer("/", "", "-", "", ".", "").Replace(root),
		)
	}

	return dedupe(variants)
}
