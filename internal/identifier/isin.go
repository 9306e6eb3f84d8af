// Package identifier validates and canonicalizes financial-instrument
// identifiers. Only ISIN codes are supported.
package identifier

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidISIN indicates that an input string is not a valid ISIN.
// It is never retried and always surfaced to the caller.
var ErrInvalidISIN = errors.New("invalid ISIN")

// isinPattern matches a canonical ISIN: a two-letter country prefix,
// nine alphanumeric characters, and a trailing check digit.
var isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// Normalize canonicalizes a raw ISIN string. It applies Unicode NFKC
// normalization (so compatibility-equivalent characters such as
// fullwidth letters are tolerated), strips whitespace and hyphens,
// upper-cases the result, and validates the 12-character ISIN shape.
//
// Normalize is pure and idempotent: Normalize(Normalize(x)) == Normalize(x)
// for any input it accepts.
func Normalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidISIN)
	}

	cleaned := norm.NFKC.String(raw)
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.ToUpper(cleaned)

	if len(cleaned) != 12 {
		return "", fmt.Errorf("%w: expected 12 characters, got %d (%q)", ErrInvalidISIN, len(cleaned), cleaned)
	}

	if !isinPattern.MatchString(cleaned) {
		return "", fmt.Errorf("%w: %q does not match 2 letters + 9 alphanumerics + 1 digit", ErrInvalidISIN, cleaned)
	}

	return cleaned, nil
}

// NormalizeAll normalizes a list of raw identifiers, failing on the first
// invalid entry.
func NormalizeAll(raws []string) ([]string, error) {
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		isin, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, isin)
	}
	return out, nil
}
