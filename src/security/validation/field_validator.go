package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	DefaultMaxStringLength = 255
	MaxISINLength          = 12
	MaxSymbolLength        = 32
	MaxSecurityNameLength  = 255
)

var symbolRe = regexp.MustCompile(`^[A-Za-z0-9.^=\-]{1,32}$`)

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is
// within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateSymbol accepts either an ISIN or a market-data ticker symbol.
func ValidateSymbol(s string) error {
	if err := ValidateStringNotEmpty(s, "symbol"); err != nil {
		return err
	}
	if !symbolRe.MatchString(strings.TrimSpace(s)) {
		return fmt.Errorf("%w: symbol contains invalid characters", ErrValidationFailed)
	}
	return nil
}

// ValidateSide accepts the two transaction sides, case-insensitively.
func ValidateSide(s string) error {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "SELL":
		return nil
	}
	return fmt.Errorf("%w: side must be BUY or SELL", ErrValidationFailed)
}

// ValidatePositiveNumber rejects zero, negative, NaN-ish and absurd values.
func ValidatePositiveNumber(v float64, fieldName string) error {
	if !(v > 0) {
		return fmt.Errorf("%w: %s must be positive", ErrValidationFailed, fieldName)
	}
	if v > 1e12 {
		return fmt.Errorf("%w: %s is implausibly large", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateDate requires the canonical YYYY-MM-DD form and a real calendar
// date.
func ValidateDate(s, fieldName string) error {
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("%w: %s must be a valid YYYY-MM-DD date", ErrValidationFailed, fieldName)
	}
	return nil
}
