// Package normalizer implements the Normalizer (C1): pure, total,
// deterministic functions over strings that canonicalize company names
// and parse ticker formats, with no side effects and no dependency on
// any other engine package.
package normalizer

import (
	"regexp"
	"strings"
)

// suffixTokens is the greedy, longest-first list of corporate-entity and
// share-class tokens stripped from a company name (§4.1). Longer, more
// specific tokens are listed before their shorter substrings so that e.g.
// "SPONSORED ADR" is tried before "ADR" alone.
var suffixTokens = []string{
	"SPONSORED ADR", "UNSPONSORED ADR",
	"INCORPORATED", "CORPORATION", "HOLDINGS", "LIMITED", "COMPANY",
	"ORDINARY", "COMMON", "REGISTERED",
	"CLASS A", "CLASS B", "CLASS C",
	"CL A", "CL B", "CL C",
	"CORP", "INC", "LTD", "PLC", "LLC", "LLP",
	"ADR", "ADS", "GDR", "REG",
	"CO", "AG", "SA", "NV", "SE", "AB", "AS", "KK", "BV", "CV", "LP",
}

var (
	punctuationRE = regexp.MustCompile(`[^\p{L}\p{N}\s&]`)
	whitespaceRE  = regexp.MustCompile(`\s+`)
	leadingTheRE  = regexp.MustCompile(`^THE\s+`)
)

// suffixBoundaryRE caches a compiled trailing-token matcher per
// token so repeated calls to NormalizeName don't recompile regexes.
var suffixBoundaryRE = make(map[string]*regexp.Regexp, len(suffixTokens))

func init() {
	for _, tok := range suffixTokens {
		// word-boundary-bound, anchored to the end of the (trimmed) string
		suffixBoundaryRE[tok] = regexp.MustCompile(`\b` + regexp.QuoteMeta(tok) + `\s*$`)
	}
}

// NormalizeName uppercases the input, strips punctuation except "&",
// collapses whitespace, and repeatedly strips suffix tokens to a fixed
// point (§4.1). Safe on empty input.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}

	upper := strings.ToUpper(name)
	upper = punctuationRE.ReplaceAllString(upper, " ")
	upper = whitespaceRE.ReplaceAllString(upper, " ")
	upper = strings.TrimSpace(upper)

	for {
		stripped := false
		for _, tok := range suffixTokens {
			re := suffixBoundaryRE[tok]
			if re.MatchString(upper) {
				upper = strings.TrimSpace(re.ReplaceAllString(upper, ""))
				stripped = true
			}
		}
		if !stripped {
			break
		}
	}

	return upper
}

// NameVariants returns the ordered, de-duplicated, specificity-descending
// variant list used by the resolver cascade (§4.1): the uppercased
// original, the fully normalized form, the first word (if at least 3
// characters), and the normalized form with a leading "THE " removed.
func NameVariants(name string) []string {
	if name == "" {
		return []string{}
	}

	original := strings.TrimSpace(strings.ToUpper(name))
	normalized := NormalizeName(name)

	variants := []string{original, normalized}

	if fields := strings.Fields(normalized); len(fields) > 0 && len(fields[0]) >= 3 {
		variants = append(variants, fields[0])
	}

	withoutThe := leadingTheRE.ReplaceAllString(normalized, "")
	if withoutThe != normalized {
		variants = append(variants, strings.TrimSpace(withoutThe))
	}

	return dedupe(variants)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
