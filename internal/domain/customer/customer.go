// Package customer normalizes untrusted customer contact fields before any
// inventory access happens. All functions are pure: same input, same output,
// no side effects.
package customer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxNameLen = 100

// emailPattern matches local@domain.tld without consecutive whitespace or
// missing parts. Intentionally permissive beyond that; the address is a
// contact field, not an identity.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError indicates a customer field failed sanitization.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Customer holds sanitized customer contact fields.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Sanitize normalizes the raw customer fields and returns them, or a
// *ValidationError naming the first field that failed.
func Sanitize(name, email, phone string) (Customer, error) {
	n, err := SanitizeName(name)
	if err != nil {
		return Customer{}, err
	}
	e, err := SanitizeEmail(email)
	if err != nil {
		return Customer{}, err
	}
	p, err := SanitizePhone(phone)
	if err != nil {
		return Customer{}, err
	}
	return Customer{Name: n, Email: e, Phone: p}, nil
}

// SanitizeName trims, truncates to 100 characters, and strips angle brackets.
// The result must be at least 2 characters long. Both limits count characters
// rather than bytes, so a multibyte name is never cut mid-rune.
func SanitizeName(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if runes := []rune(s); len(runes) > maxNameLen {
		s = string(runes[:maxNameLen])
	}
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	if utf8.RuneCountInString(s) < 2 {
		return "", &ValidationError{Field: "customer_name", Reason: "must be at least 2 characters"}
	}
	return s, nil
}

// SanitizeEmail trims, lowercases, and validates a local@domain.tld shape.
func SanitizeEmail(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(s) {
		return "", &ValidationError{Field: "customer_email", Reason: "malformed address"}
	}
	return s, nil
}

// SanitizePhone strips everything except digits and a single leading "+".
// The cleaned number must be 8 to 20 characters long. Phone is an optional
// contact field: an empty input stays empty and passes.
func SanitizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}

	var b strings.Builder
	for i, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}

	s := b.String()
	if len(s) < 8 || len(s) > 20 {
		return "", &ValidationError{Field: "customer_phone", Reason: "must contain 8 to 20 digits"}
	}
	return s, nil
}
