package utils

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	controlChars    = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	receiptNumberRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._#/-]{0,63}$`)
)

// SanitizeString strips control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// ValidateRequired fails when s is empty after sanitizing
func ValidateRequired(field, s string) error {
	if SanitizeString(s) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// ValidateMaxLen fails when s is longer than max runes
func ValidateMaxLen(field, s string, max int) error {
	if len([]rune(s)) > max {
		return fmt.Errorf("%s must be at most %d characters", field, max)
	}
	return nil
}

// ValidateWeight checks a scale weight in pounds
func ValidateWeight(lbs float64) error {
	if lbs <= 0 {
		return fmt.Errorf("weight must be positive: %.2f", lbs)
	}
	if lbs > 200000 {
		return fmt.Errorf("weight exceeds maximum limit: %.2f", lbs)
	}
	return nil
}

// ValidateReceiptNumber accepts the printable formats scale houses use
func ValidateReceiptNumber(n string) error {
	if n == "" {
		return nil
	}
	if !receiptNumberRe.MatchString(n) {
		return fmt.Errorf("invalid receipt number format: %q", n)
	}
	return nil
}

// ValidateImageRef accepts an http(s) URL or a relative path without parent traversal
func ValidateImageRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("receipt image reference is required")
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		u, err := url.Parse(ref)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid receipt image url: %q", ref)
		}
		return nil
	}
	if filepath.IsAbs(ref) {
		return fmt.Errorf("receipt image path must be relative: %q", ref)
	}
	for _, part := range strings.Split(filepath.ToSlash(ref), "/") {
		if part == ".." {
			return fmt.Errorf("receipt image path must not contain '..': %q", ref)
		}
	}
	return nil
}
