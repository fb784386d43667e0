package validator

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

const (
	MinPasswordLength = 8
	MaxUsernameLength = 255
)

func ValidateRequired(value string) bool {
	return strings.TrimSpace(value) != ""
}

// ValidateUsername accepts plain login names such as "admin" as well as email
// addresses. Whitespace and control characters are rejected.
func ValidateUsername(username string) bool {
	if username == "" || len(username) > MaxUsernameLength {
		return false
	}
	for _, r := range username {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func ValidatePassword(password string) bool {
	return len(password) >= MinPasswordLength
}

// QueryInt reads a positive integer query parameter, falling back to def when
// it is absent or malformed.
func QueryInt(values url.Values, key string, def int) int {
	raw := values.Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
