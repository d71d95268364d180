package redact

import (
	"regexp"
	"strings"
	"unicode"
)

// Pattern detects one kind of sensitive value. Validate, when set, rejects
// regex matches that are false positives.
type Pattern struct {
	Name     string
	Regex    *regexp.Regexp
	Validate func(match string) bool
}

// DefaultPatterns returns the detectors applied to report cells.
//
// Phone numbers must contain separators so that plain ten-digit amounts and
// record ids are left alone.
func DefaultPatterns() []*Pattern {
	return []*Pattern{
		{
			Name:  "EMAIL",
			Regex: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		},
		{
			Name:     "SSN",
			Regex:    regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Validate: validateSSN,
		},
		{
			Name:     "CREDIT_CARD",
			Regex:    regexp.MustCompile(`\b(?:\d[\s\-]?){13,19}\b`),
			Validate: validateCreditCard,
		},
		{
			Name:  "PHONE",
			Regex: regexp.MustCompile(`(?:\+\d{1,3}[\s.\-])?(?:\(\d{3}\)\s?|\d{3}[\s.\-])\d{3}[\s.\-]\d{4}\b`),
		},
		{
			Name:  "API_KEY",
			Regex: regexp.MustCompile(`(?:sk-[a-zA-Z0-9]{20,})|(?:AKIA[A-Z0-9]{16})|(?:ghp_[a-zA-Z0-9]{36})`),
		},
	}
}

// validateSSN rejects area numbers 000, 666 and 9xx and all-zero groups or
// serials.
func validateSSN(match string) bool {
	if len(match) != 11 {
		return false
	}
	area, group, serial := match[0:3], match[4:6], match[7:11]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	return group != "00" && serial != "0000"
}

// validateCreditCard requires 13 to 19 digits passing the Luhn check.
func validateCreditCard(match string) bool {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, match)

	if n := len(cleaned); n < 13 || n > 19 {
		return false
	}
	return luhnCheck(cleaned)
}

func luhnCheck(number string) bool {
	sum := 0
	alt := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}
