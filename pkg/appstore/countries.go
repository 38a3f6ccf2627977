package appstore

import (
	"fmt"
	"strings"
)

// Input limits for a single search request. Each keyword x country pair
// costs one API call, so both lists are capped.
const (
	MaxKeywordsPerSearch  = 20
	MaxCountriesPerSearch = 5
)

// storefronts lists the App Store country codes the search API accepts.
var storefronts = map[string]bool{
	"us": true, "gb": true, "ca": true, "au": true, "de": true,
	"fr": true, "it": true, "es": true, "nl": true, "se": true,
	"no": true, "dk": true, "fi": true, "pl": true, "pt": true,
	"ch": true, "at": true, "be": true, "ie": true, "jp": true,
	"kr": true, "cn": true, "hk": true, "tw": true, "sg": true,
	"in": true, "id": true, "my": true, "th": true, "ph": true,
	"vn": true, "br": true, "mx": true, "ar": true, "cl": true,
	"co": true, "pe": true, "ru": true, "tr": true, "sa": true,
	"ae": true, "il": true, "za": true, "eg": true, "ng": true,
	"nz": true,
}

// ValidStorefront reports whether code is a known App Store country code.
func ValidStorefront(code string) bool {
	return storefronts[strings.ToLower(code)]
}

// ParseKeywords splits a comma-separated keyword list, lowercases and
// de-duplicates entries, and enforces the per-search cap.
func ParseKeywords(raw string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, part := range strings.Split(raw, ",") {
		kw := strings.ToLower(strings.TrimSpace(part))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
		if len(keywords) >= MaxKeywordsPerSearch {
			break
		}
	}
	return keywords
}

// ParseCountries splits a comma-separated country list, validates each
// code, and enforces the per-search cap. Returns an error naming the
// first unknown code.
func ParseCountries(raw string) ([]string, error) {
	seen := make(map[string]bool)
	var countries []string
	for _, part := range strings.Split(raw, ",") {
		cc := strings.ToLower(strings.TrimSpace(part))
		if cc == "" || seen[cc] {
			continue
		}
		if !ValidStorefront(cc) {
			return nil, fmt.Errorf("unknown storefront %q", cc)
		}
		seen[cc] = true
		countries = append(countries, cc)
		if len(countries) >= MaxCountriesPerSearch {
			break
		}
	}
	if len(countries) == 0 {
		countries = []string{"us"}
	}
	return countries, nil
}
