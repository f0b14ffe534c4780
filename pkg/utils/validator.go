package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var rfcRegex = regexp.MustCompile(`^[A-ZÑ&]{3,4}\d{6}[A-Z0-9]{3}$`)

// ValidateRFC validates a Mexican taxpayer registry code (RFC): 12
// characters for companies, 13 for individuals.
func ValidateRFC(rfc string) error {
	rfc = strings.ToUpper(strings.TrimSpace(rfc))
	if len(rfc) != 12 && len(rfc) != 13 {
		return fmt.Errorf("RFC must be 12 or 13 characters: %s", rfc)
	}
	if !rfcRegex.MatchString(rfc) {
		return fmt.Errorf("invalid RFC format: %s", rfc)
	}
	return nil
}

// ValidateCurrency validates an ISO 4217 currency code.
func ValidateCurrency(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("currency code must be 3 letters: %s", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("currency code must be uppercase letters: %s", code)
		}
	}
	return nil
}

// SanitizeString removes control characters from free-text input such as
// expense descriptions and bank movement references.
func SanitizeString(s string) string {
	return regexp.MustCompile(`[\x00-\x1f\x7f]`).ReplaceAllString(s, "")
}
