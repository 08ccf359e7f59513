// Package normalize canonicalizes vendor names into grouping keys.
package normalize

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEmptyVendor is returned when a vendor name normalizes to nothing.
var ErrEmptyVendor = errors.New("vendor name cannot be empty")

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

var corporateSuffixes = map[string]struct{}{
	"inc":         {},
	"llc":         {},
	"ltd":         {},
	"corp":        {},
	"co":          {},
	"company":     {},
	"corporation": {},
}

// Vendor lowercases name, strips punctuation, drops corporate suffix tokens
// and collapses whitespace. "ACME, Inc." and "Acme Inc" both become "acme".
func Vendor(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyVendor
	}

	cleaned := punctuation.ReplaceAllString(strings.ToLower(name), "")

	tokens := strings.Fields(cleaned)
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, ok := corporateSuffixes[tok]; ok {
			continue
		}
		kept = append(kept, tok)
	}

	normalized := strings.Join(kept, " ")
	if normalized == "" {
		return "", ErrEmptyVendor
	}
	return normalized, nil
}
