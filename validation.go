package otpgate

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// NormalizeEmail trims surrounding whitespace and lower-cases email. The
// result is the storage key for pending registrations, codes and accounts.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(normalized string) error {
	if normalized == "" {
		return invalidField("email", "required")
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || addr.Name != "" {
		return invalidField("email", "must be a valid email address")
	}
	at := strings.LastIndexByte(normalized, '@')
	if at <= 0 || !strings.Contains(normalized[at+1:], ".") {
		return invalidField("email", "must be a valid email address")
	}
	return nil
}

func validateName(field, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return invalidField(field, "required")
	}
	if utf8.RuneCountInString(value) > maxLen {
		return invalidField(field, "too long")
	}
	return nil
}

func validatePassword(password string, minBytes, maxBytes int) error {
	if password == "" {
		return invalidField("password", "required")
	}
	if len(password) < minBytes {
		return invalidField("password", "too short")
	}
	if maxBytes > 0 && len(password) > maxBytes {
		return invalidField("password", "too long")
	}
	return nil
}

func validateCode(code string) error {
	if code == "" {
		return invalidField("otp", "required")
	}
	if len(code) > codeLength {
		return invalidField("otp", "too long")
	}
	return nil
}
